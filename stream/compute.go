package stream

import (
	"context"

	"tickflow/models"
)

// Computable derives synthetic events from the canonical stream. OnEvent
// returns the derived events triggered by ev, possibly none. Flush returns
// whatever is still accumulating when the source is exhausted; it is not
// called on disconnect, where partial state is stale and must be dropped
// instead.
type Computable interface {
	OnEvent(ev models.Event) []models.Event
	Flush() []models.Event
}

// Compute pipes source through the supplied computables. For each input
// event it yields the original event first, then the derived events of each
// computable in the order the computables were supplied.
func Compute(ctx context.Context, source <-chan models.Event, computables ...Computable) <-chan models.Event {
	out := make(chan models.Event, 1)

	emit := func(ev models.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-source:
				if !ok {
					for _, c := range computables {
						for _, derived := range c.Flush() {
							if !emit(derived) {
								return
							}
						}
					}
					return
				}
				if !emit(ev) {
					return
				}
				for _, c := range computables {
					for _, derived := range c.OnEvent(ev) {
						if !emit(derived) {
							return
						}
					}
				}
			}
		}
	}()

	return out
}
