// Package orderbook maintains a generic sorted order book built from
// canonical book change events. It carries no venue sequence bookkeeping;
// sequence validation happens upstream during reconstruction.
package orderbook

import (
	"github.com/google/btree"

	"tickflow/models"
)

const btreeDegree = 32

type level struct {
	price  float64
	amount float64
}

// OrderBook keeps bid and ask ladders sorted by price: bids descending,
// asks ascending. Upsert, delete and ordered iteration are O(log n), which
// matters because deep venue feeds carry thousands of levels.
type OrderBook struct {
	bids        *btree.BTreeG[level]
	asks        *btree.BTreeG[level]
	hasSnapshot bool
}

// New creates an empty order book.
func New() *OrderBook {
	return &OrderBook{
		bids: btree.NewG(btreeDegree, func(a, b level) bool { return a.price > b.price }),
		asks: btree.NewG(btreeDegree, func(a, b level) bool { return a.price < b.price }),
	}
}

// Update applies a book change. A snapshot discards both ladders and
// replaces them with the event's levels. A delta upserts levels with a
// positive amount and deletes levels with amount <= 0 (no-op when the
// price is absent).
func (b *OrderBook) Update(change *models.BookChange) {
	if change.IsSnapshot {
		b.bids.Clear(false)
		b.asks.Clear(false)
		b.hasSnapshot = true
	}
	applySide(b.bids, change.Bids)
	applySide(b.asks, change.Asks)
}

func applySide(side *btree.BTreeG[level], levels []models.PriceLevel) {
	for _, l := range levels {
		if l.Amount > 0 {
			side.ReplaceOrInsert(level{price: l.Price, amount: l.Amount})
		} else {
			side.Delete(level{price: l.Price})
		}
	}
}

// HasSnapshot reports whether the book has absorbed at least one snapshot.
func (b *OrderBook) HasSnapshot() bool { return b.hasSnapshot }

// BestBid returns the highest bid. The second value is false when the bid
// ladder is empty.
func (b *OrderBook) BestBid() (models.PriceLevel, bool) { return best(b.bids) }

// BestAsk returns the lowest ask. The second value is false when the ask
// ladder is empty.
func (b *OrderBook) BestAsk() (models.PriceLevel, bool) { return best(b.asks) }

func best(side *btree.BTreeG[level]) (models.PriceLevel, bool) {
	l, ok := side.Min()
	if !ok {
		return models.PriceLevel{}, false
	}
	return models.PriceLevel{Price: l.price, Amount: l.amount}, true
}

// EachBid walks bids from best (highest) to worst until fn returns false.
func (b *OrderBook) EachBid(fn func(models.PriceLevel) bool) { each(b.bids, fn) }

// EachAsk walks asks from best (lowest) to worst until fn returns false.
func (b *OrderBook) EachAsk(fn func(models.PriceLevel) bool) { each(b.asks, fn) }

func each(side *btree.BTreeG[level], fn func(models.PriceLevel) bool) {
	side.Ascend(func(l level) bool {
		return fn(models.PriceLevel{Price: l.price, Amount: l.amount})
	})
}

// TopBids returns up to n best bids in descending price order.
func (b *OrderBook) TopBids(n int) []models.PriceLevel { return top(b.bids, n) }

// TopAsks returns up to n best asks in ascending price order.
func (b *OrderBook) TopAsks(n int) []models.PriceLevel { return top(b.asks, n) }

func top(side *btree.BTreeG[level], n int) []models.PriceLevel {
	if n <= 0 {
		return nil
	}
	out := make([]models.PriceLevel, 0, n)
	side.Ascend(func(l level) bool {
		out = append(out, models.PriceLevel{Price: l.price, Amount: l.amount})
		return len(out) < n
	})
	return out
}

// Depth returns the number of levels held per side.
func (b *OrderBook) Depth() (bids, asks int) { return b.bids.Len(), b.asks.Len() }
