package stream

import (
	"fmt"
	"strings"
	"time"

	"tickflow/models"
	"tickflow/orderbook"
)

// BookSnapshotOptions configures a book snapshot computable.
type BookSnapshotOptions struct {
	// Depth is the number of levels captured per side.
	Depth int
	// Interval throttles emission per exchange+symbol. Zero emits after
	// every applied book change once a snapshot has been absorbed.
	Interval time.Duration
	// Name overrides the emitted event type tag; defaults to
	// "book_snapshot_<depth>_<interval>ms".
	Name string
}

type bookSnapshotComputable struct {
	opts        BookSnapshotOptions
	name        string
	books       map[string]*orderbook.OrderBook
	lastEmitted map[string]time.Time
}

// NewBookSnapshots creates a computable that maintains one order book per
// exchange+symbol and emits periodic depth snapshots from it. Book state
// scoped to an exchange is discarded when a Disconnect arrives.
func NewBookSnapshots(opts BookSnapshotOptions) Computable {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("book_snapshot_%d_%dms", opts.Depth, opts.Interval.Milliseconds())
	}
	return &bookSnapshotComputable{
		opts:        opts,
		name:        name,
		books:       make(map[string]*orderbook.OrderBook),
		lastEmitted: make(map[string]time.Time),
	}
}

func (c *bookSnapshotComputable) OnEvent(ev models.Event) []models.Event {
	switch e := ev.(type) {
	case *models.BookChange:
		return c.onBookChange(e)
	case *models.Disconnect:
		c.reset(e.Exchange)
	}
	return nil
}

func (c *bookSnapshotComputable) onBookChange(change *models.BookChange) []models.Event {
	key := change.Exchange + "|" + change.Symbol
	book, ok := c.books[key]
	if !ok {
		book = orderbook.New()
		c.books[key] = book
	}
	book.Update(change)

	if !book.HasSnapshot() {
		return nil
	}
	if c.opts.Interval > 0 {
		last, seen := c.lastEmitted[key]
		if seen && change.LocalTimestamp.Sub(last) < c.opts.Interval {
			return nil
		}
		c.lastEmitted[key] = change.LocalTimestamp
	}

	return []models.Event{&models.BookSnapshot{
		Type:           c.name,
		Symbol:         change.Symbol,
		Exchange:       change.Exchange,
		Name:           c.name,
		Depth:          c.opts.Depth,
		Interval:       c.opts.Interval.Milliseconds(),
		Bids:           book.TopBids(c.opts.Depth),
		Asks:           book.TopAsks(c.opts.Depth),
		Timestamp:      change.Timestamp,
		LocalTimestamp: change.LocalTimestamp,
	}}
}

func (c *bookSnapshotComputable) reset(exchange string) {
	prefix := exchange + "|"
	for key := range c.books {
		if strings.HasPrefix(key, prefix) {
			delete(c.books, key)
			delete(c.lastEmitted, key)
		}
	}
}

// Flush emits nothing: a book snapshot is only meaningful at an update.
func (c *bookSnapshotComputable) Flush() []models.Event { return nil }
