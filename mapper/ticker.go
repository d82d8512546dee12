package mapper

import (
	"time"

	"tickflow/models"
)

// TickerAccumulator coalesces partial derivative ticker fields that arrive
// on separate venue channels (funding, mark price, index price, last price,
// open interest) into one pending value per exchange+symbol. A mapper
// applies zero or more field updates per raw message and emits a snapshot
// only when something observable changed.
type TickerAccumulator struct {
	pending map[string]*PendingTicker
}

// NewTickerAccumulator creates an empty accumulator.
func NewTickerAccumulator() *TickerAccumulator {
	return &TickerAccumulator{pending: make(map[string]*PendingTicker)}
}

// Get returns the pending ticker for exchange+symbol, creating it on first
// access.
func (a *TickerAccumulator) Get(symbol, exchange string) *PendingTicker {
	key := exchange + "|" + symbol
	p, ok := a.pending[key]
	if !ok {
		p = &PendingTicker{symbol: symbol, exchange: exchange}
		a.pending[key] = p
	}
	return p
}

// Reset discards all pending state.
func (a *TickerAccumulator) Reset() {
	a.pending = make(map[string]*PendingTicker)
}

// PendingTicker holds the last observed value of each derivative ticker
// field plus a dirty flag set whenever a field transitions to a new value.
type PendingTicker struct {
	symbol   string
	exchange string

	fundingRate          *float64
	predictedFundingRate *float64
	fundingTimestamp     *time.Time
	indexPrice           *float64
	markPrice            *float64
	lastPrice            *float64
	openInterest         *float64
	timestamp            time.Time

	changed bool
}

func (p *PendingTicker) updateFloat(field **float64, value float64) {
	if *field == nil || **field != value {
		v := value
		*field = &v
		p.changed = true
	}
}

func (p *PendingTicker) UpdateFundingRate(v float64)          { p.updateFloat(&p.fundingRate, v) }
func (p *PendingTicker) UpdatePredictedFundingRate(v float64) { p.updateFloat(&p.predictedFundingRate, v) }
func (p *PendingTicker) UpdateIndexPrice(v float64)           { p.updateFloat(&p.indexPrice, v) }
func (p *PendingTicker) UpdateMarkPrice(v float64)            { p.updateFloat(&p.markPrice, v) }
func (p *PendingTicker) UpdateLastPrice(v float64)            { p.updateFloat(&p.lastPrice, v) }
func (p *PendingTicker) UpdateOpenInterest(v float64)         { p.updateFloat(&p.openInterest, v) }

func (p *PendingTicker) UpdateFundingTimestamp(t time.Time) {
	if p.fundingTimestamp == nil || !p.fundingTimestamp.Equal(t) {
		v := t
		p.fundingTimestamp = &v
		p.changed = true
	}
}

// UpdateTimestamp records the venue-reported event time. It does not mark
// the ticker dirty: a timestamp alone is not an observable change.
func (p *PendingTicker) UpdateTimestamp(t time.Time) {
	p.timestamp = t
}

// HasChanged reports whether any field changed since the last snapshot.
func (p *PendingTicker) HasChanged() bool { return p.changed }

// Snapshot clears the dirty flag and returns an immutable ticker built from
// the current field state.
func (p *PendingTicker) Snapshot(localTimestamp time.Time) *models.DerivativeTicker {
	p.changed = false
	ts := p.timestamp
	if ts.IsZero() {
		ts = localTimestamp
	}
	return &models.DerivativeTicker{
		Symbol:               p.symbol,
		Exchange:             p.exchange,
		LastPrice:            copyFloat(p.lastPrice),
		OpenInterest:         copyFloat(p.openInterest),
		FundingRate:          copyFloat(p.fundingRate),
		FundingTimestamp:     copyTime(p.fundingTimestamp),
		PredictedFundingRate: copyFloat(p.predictedFundingRate),
		IndexPrice:           copyFloat(p.indexPrice),
		MarkPrice:            copyFloat(p.markPrice),
		Timestamp:            ts,
		LocalTimestamp:       localTimestamp,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
