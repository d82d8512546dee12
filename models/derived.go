package models

import (
	"encoding/json"
	"time"
)

// Trade bar kinds.
const (
	BarKindTime   = "time"
	BarKindTick   = "tick"
	BarKindVolume = "volume"
)

// BookSnapshot is a derived event carrying the top N levels of a
// reconstructed order book. The type tag is configurable so multiple
// snapshot computables with different parameters can coexist in one stream.
type BookSnapshot struct {
	Type           string       `json:"-"`
	Symbol         string       `json:"symbol"`
	Exchange       string       `json:"exchange"`
	Name           string       `json:"name"`
	Depth          int          `json:"depth"`
	Interval       int64        `json:"interval"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	Timestamp      time.Time    `json:"timestamp"`
	LocalTimestamp time.Time    `json:"localTimestamp"`
}

func (b *BookSnapshot) Kind() string         { return b.Type }
func (b *BookSnapshot) LocalTime() time.Time { return b.LocalTimestamp }

func (b BookSnapshot) MarshalJSON() ([]byte, error) {
	type alias BookSnapshot
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.Type, alias(b)})
}

// TradeBar is a derived OHLC aggregation of trades over a time, tick count
// or volume window.
type TradeBar struct {
	Type           string    `json:"-"`
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	Name           string    `json:"name"`
	BarKind        string    `json:"kind"`
	Interval       float64   `json:"interval"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	BuyVolume      float64   `json:"buyVolume"`
	SellVolume     float64   `json:"sellVolume"`
	Trades         int       `json:"trades"`
	OpenTimestamp  time.Time `json:"openTimestamp"`
	CloseTimestamp time.Time `json:"closeTimestamp"`
	Timestamp      time.Time `json:"timestamp"`
	LocalTimestamp time.Time `json:"localTimestamp"`
}

func (b *TradeBar) Kind() string         { return b.Type }
func (b *TradeBar) LocalTime() time.Time { return b.LocalTimestamp }

func (b TradeBar) MarshalJSON() ([]byte, error) {
	type alias TradeBar
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{b.Type, alias(b)})
}
