package stream

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tickflow/models"
)

// TradeBarOptions configures a trade bar computable.
type TradeBarOptions struct {
	// Kind is one of models.BarKindTime (Interval in milliseconds),
	// models.BarKindTick (Interval is a trade count) or
	// models.BarKindVolume (Interval is a base amount).
	Kind string
	// Interval is the bar window in the unit implied by Kind.
	Interval float64
	// Name overrides the emitted event type tag.
	Name string
}

type barState struct {
	open           float64
	high           float64
	low            float64
	close          float64
	volume         float64
	buyVolume      float64
	sellVolume     float64
	trades         int
	bucket         int64
	openTimestamp  time.Time
	closeTimestamp time.Time
	localTimestamp time.Time
}

func (b *barState) append(t *models.Trade, amount float64) {
	if b.trades == 0 {
		b.open = t.Price
		b.high = t.Price
		b.low = t.Price
		b.openTimestamp = t.Timestamp
	}
	if t.Price > b.high {
		b.high = t.Price
	}
	if t.Price < b.low {
		b.low = t.Price
	}
	b.close = t.Price
	b.closeTimestamp = t.Timestamp
	b.localTimestamp = t.LocalTimestamp
	b.volume += amount
	switch t.Side {
	case models.SideBuy:
		b.buyVolume += amount
	case models.SideSell:
		b.sellVolume += amount
	}
	b.trades++
}

type tradeBarComputable struct {
	opts TradeBarOptions
	name string
	bars map[string]*barState
}

// NewTradeBars creates a computable aggregating trades into OHLC bars by
// time window, tick count or traded volume. Open bars scoped to an
// exchange are dropped, not flushed, when a Disconnect arrives.
func NewTradeBars(opts TradeBarOptions) Computable {
	name := opts.Name
	if name == "" {
		switch opts.Kind {
		case models.BarKindTick:
			name = fmt.Sprintf("trade_bar_%dticks", int64(opts.Interval))
		case models.BarKindVolume:
			name = fmt.Sprintf("trade_bar_%dvol", int64(opts.Interval))
		default:
			name = fmt.Sprintf("trade_bar_%dms", int64(opts.Interval))
		}
	}
	return &tradeBarComputable{
		opts: opts,
		name: name,
		bars: make(map[string]*barState),
	}
}

func (c *tradeBarComputable) OnEvent(ev models.Event) []models.Event {
	switch e := ev.(type) {
	case *models.Trade:
		return c.onTrade(e)
	case *models.Disconnect:
		prefix := e.Exchange + "|"
		for key := range c.bars {
			if strings.HasPrefix(key, prefix) {
				delete(c.bars, key)
			}
		}
	}
	return nil
}

func (c *tradeBarComputable) onTrade(t *models.Trade) []models.Event {
	key := t.Exchange + "|" + t.Symbol
	bar, ok := c.bars[key]
	if !ok {
		bar = &barState{}
		c.bars[key] = bar
	}

	switch c.opts.Kind {
	case models.BarKindTick:
		bar.append(t, t.Amount)
		if bar.trades >= int(c.opts.Interval) {
			closed := c.emit(t.Exchange, t.Symbol, bar)
			c.bars[key] = &barState{}
			return []models.Event{closed}
		}
		return nil

	case models.BarKindVolume:
		var out []models.Event
		remaining := t.Amount
		// One oversized trade may close several bars; each closed bar
		// carries exactly Interval volume and the remainder rolls over.
		for bar.volume+remaining >= c.opts.Interval {
			portion := c.opts.Interval - bar.volume
			bar.append(t, portion)
			remaining -= portion
			out = append(out, c.emit(t.Exchange, t.Symbol, bar))
			bar = &barState{}
			c.bars[key] = bar
		}
		if remaining > 0 {
			bar.append(t, remaining)
		}
		return out

	default: // time
		bucket := t.Timestamp.UnixMilli() / int64(c.opts.Interval)
		var out []models.Event
		if bar.trades > 0 && bar.bucket != bucket {
			out = append(out, c.emit(t.Exchange, t.Symbol, bar))
			bar = &barState{}
			c.bars[key] = bar
		}
		bar.bucket = bucket
		bar.append(t, t.Amount)
		return out
	}
}

func (c *tradeBarComputable) emit(exchange, symbol string, bar *barState) models.Event {
	return &models.TradeBar{
		Type:           c.name,
		Symbol:         symbol,
		Exchange:       exchange,
		Name:           c.name,
		BarKind:        c.opts.Kind,
		Interval:       c.opts.Interval,
		Open:           bar.open,
		High:           bar.high,
		Low:            bar.low,
		Close:          bar.close,
		Volume:         bar.volume,
		BuyVolume:      bar.buyVolume,
		SellVolume:     bar.sellVolume,
		Trades:         bar.trades,
		OpenTimestamp:  bar.openTimestamp,
		CloseTimestamp: bar.closeTimestamp,
		Timestamp:      bar.closeTimestamp,
		LocalTimestamp: bar.localTimestamp,
	}
}

// Flush closes every open bar with at least one trade, keyed
// deterministically so historical runs produce stable output.
func (c *tradeBarComputable) Flush() []models.Event {
	keys := make([]string, 0, len(c.bars))
	for key, bar := range c.bars {
		if bar.trades > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]models.Event, 0, len(keys))
	for _, key := range keys {
		exchange, symbol, _ := strings.Cut(key, "|")
		out = append(out, c.emit(exchange, symbol, c.bars[key]))
	}
	c.bars = make(map[string]*barState)
	return out
}
