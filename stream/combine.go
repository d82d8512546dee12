// Package stream merges canonical event sources and derives analytic
// series (order book snapshots, trade bars) from the merged stream.
package stream

import (
	"context"
	"sync"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

// Sources whose first event is local-timestamped within this window of the
// wall clock are treated as real-time; everything else is historical.
const realTimeWindow = 3 * time.Minute

// fanInBuffer bounds the shared queue used in real-time mode. A producer
// blocks once the queue is full, which is the only backpressure mechanism
// in the pipeline.
const fanInBuffer = 1024

// Combine merges N event sources into one sequence. Each source must be
// internally ordered by local timestamp. Real-time sources are fanned in
// one shared bounded queue preserving arrival order; historical sources go
// through a k-way merge producing one globally timestamp-sorted sequence.
// Cancelling ctx terminates consumption of every source.
func Combine(ctx context.Context, sources ...<-chan models.Event) <-chan models.Event {
	out := make(chan models.Event, 1)

	if len(sources) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)

		// Peek the first value of the first source to classify all of them.
		var first models.Event
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sources[0]:
			if !ok {
				combineHistorical(ctx, sources, nil, out)
				return
			}
			first = ev
		}

		if time.Since(first.LocalTime()).Abs() < realTimeWindow {
			combineRealTime(ctx, sources, first, out)
			return
		}
		combineHistorical(ctx, sources, first, out)
	}()

	return out
}

// combineRealTime forwards the peeked first value, then fans every source
// into one shared bounded channel in pure arrival order.
func combineRealTime(ctx context.Context, sources []<-chan models.Event, first models.Event, out chan<- models.Event) {
	log := logger.GetLogger().WithComponent("combiner")
	log.WithFields(logger.Fields{"sources": len(sources), "mode": "real_time"}).Debug("combining sources")

	select {
	case out <- first:
	case <-ctx.Done():
		return
	}

	queue := make(chan models.Event, fanInBuffer)
	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(src <-chan models.Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-src:
					if !ok {
						return
					}
					select {
					case queue <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(source)
	}
	go func() {
		wg.Wait()
		close(queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// sentinelTime pins exhausted sources so they never win the merge again.
var sentinelTime = time.Unix(1<<62/int64(time.Second), 0)

type pendingEvent struct {
	event models.Event
	local time.Time
}

// combineHistorical runs a k-way merge over sources, with peeked (the
// already consumed head of the first source, nil when that source was
// empty) seeded as its initial pending result. Sources need not be sorted
// against each other, only internally.
func combineHistorical(ctx context.Context, sources []<-chan models.Event, peeked models.Event, out chan<- models.Event) {
	log := logger.GetLogger().WithComponent("combiner")
	log.WithFields(logger.Fields{"sources": len(sources), "mode": "historical"}).Debug("combining sources")

	pending := make([]pendingEvent, len(sources))

	refill := func(idx int) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sources[idx]:
			if !ok {
				pending[idx] = pendingEvent{local: sentinelTime}
				return true
			}
			pending[idx] = pendingEvent{event: ev, local: ev.LocalTime()}
			return true
		}
	}

	if peeked != nil {
		pending[0] = pendingEvent{event: peeked, local: peeked.LocalTime()}
	} else {
		pending[0] = pendingEvent{local: sentinelTime}
	}
	for i := 1; i < len(sources); i++ {
		if !refill(i) {
			return
		}
	}

	for {
		min := -1
		for i := range pending {
			if pending[i].event == nil && pending[i].local.Equal(sentinelTime) {
				continue
			}
			if min == -1 || pending[i].local.Before(pending[min].local) {
				min = i
			}
		}
		if min == -1 {
			return
		}
		select {
		case out <- pending[min].event:
		case <-ctx.Done():
			return
		}
		if !refill(min) {
			return
		}
	}
}
