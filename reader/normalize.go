// Package reader produces raw venue messages and turns them into canonical
// event streams. Sources emit models.RawMessage records; Normalize runs
// them through an exchange dispatcher.
package reader

import (
	"context"

	"tickflow/logger"
	"tickflow/mapper"
	"tickflow/models"
)

// Normalize consumes raw messages and emits canonical events through the
// dispatcher. A disconnect record resets all mapper state and surfaces as a
// Disconnect event so downstream consumers can drop sequence-dependent
// state too. A mapping error means the stream can no longer be trusted, so
// the output closes after logging it.
func Normalize(ctx context.Context, dispatcher *mapper.Dispatcher, raw <-chan models.RawMessage, buffer int) <-chan models.Event {
	if buffer < 1 {
		buffer = 1
	}
	out := make(chan models.Event, buffer)
	log := logger.GetLogger().WithComponent("normalizer").WithFields(logger.Fields{
		"exchange": dispatcher.Exchange(),
	})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				if msg.Disconnect {
					dispatcher.Reset()
					if !send(ctx, out, &models.Disconnect{
						Exchange:       dispatcher.Exchange(),
						LocalTimestamp: msg.LocalTimestamp,
					}) {
						return
					}
					continue
				}

				events, err := dispatcher.Dispatch(msg.Payload, msg.LocalTimestamp)
				if err != nil {
					log.WithError(err).Error("mapping failed, closing event stream")
					for _, ev := range events {
						if !send(ctx, out, ev) {
							return
						}
					}
					return
				}
				for _, ev := range events {
					if !send(ctx, out, ev) {
						return
					}
				}
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- models.Event, ev models.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
