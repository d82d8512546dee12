package stream

import (
	"context"
	"strings"
	"time"

	"tickflow/internal/container"
	"tickflow/logger"
	"tickflow/models"
)

// DefaultDedupWindow is the per-symbol count of recently seen trade ids.
const DefaultDedupWindow = 500

// DedupOptions configures the duplicate trade filter.
type DedupOptions struct {
	// Window bounds the per-symbol set of recent trade ids;
	// DefaultDedupWindow when zero.
	Window int
	// SkipStaleOlderThan suppresses trades whose local receipt time lags
	// the venue timestamp by more than this duration. Zero disables the
	// staleness check.
	SkipStaleOlderThan time.Duration
	// OnSuppressed, when set, is invoked for every suppressed trade.
	OnSuppressed func(trade *models.Trade, stale bool)
}

// UniqueTradesOnly filters duplicate and stale trades out of source.
// Trades without an id and index/synthetic symbols (prefix ".") pass
// through untouched, as do all non-trade events. A suppressed id has its
// recency refreshed so a repeatedly replayed trade stays protected for the
// whole window.
func UniqueTradesOnly(ctx context.Context, source <-chan models.Event, opts DedupOptions) <-chan models.Event {
	window := opts.Window
	if window < 1 {
		window = DefaultDedupWindow
	}

	out := make(chan models.Event, 1)
	go func() {
		defer close(out)

		log := logger.GetLogger().WithComponent("trade_dedup")
		seen := make(map[string]*container.CappedSet)
		suppressed := 0

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-source:
				if !ok {
					if suppressed > 0 {
						log.WithFields(logger.Fields{"suppressed": suppressed}).Debug("dedup filter drained")
					}
					return
				}
				trade, isTrade := ev.(*models.Trade)
				if isTrade && !passes(trade, seen, window, opts) {
					suppressed++
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func passes(trade *models.Trade, seen map[string]*container.CappedSet, window int, opts DedupOptions) bool {
	if trade.ID == "" || strings.HasPrefix(trade.Symbol, ".") {
		return true
	}

	key := trade.Exchange + "|" + trade.Symbol
	set, ok := seen[key]
	if !ok {
		set = container.NewCappedSet(window)
		seen[key] = set
	}

	isDuplicate := set.Has(trade.ID)
	isStale := opts.SkipStaleOlderThan > 0 &&
		trade.LocalTimestamp.Sub(trade.Timestamp) > opts.SkipStaleOlderThan

	if isDuplicate || isStale {
		if opts.OnSuppressed != nil {
			opts.OnSuppressed(trade, isStale)
		}
		// refresh recency so a repeatedly seen id stays protected
		set.Remove(trade.ID)
		set.Add(trade.ID)
		return false
	}

	set.Add(trade.ID)
	return true
}
