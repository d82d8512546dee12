package models

import (
	"encoding/json"
	"time"
)

// Canonical event type tags as they appear in the JSON "type" field.
const (
	KindTrade            = "trade"
	KindBookChange       = "book_change"
	KindBookTicker       = "book_ticker"
	KindDerivativeTicker = "derivative_ticker"
	KindOptionSummary    = "option_summary"
	KindLiquidation      = "liquidation"
	KindDisconnect       = "disconnect"
)

// Trade sides.
const (
	SideBuy     = "buy"
	SideSell    = "sell"
	SideUnknown = "unknown"
)

// Event is implemented by every canonical event produced by a mapper or a
// computable. Kind returns the JSON type tag, LocalTime the local receipt
// timestamp used for stream merging.
type Event interface {
	Kind() string
	LocalTime() time.Time
}

// PriceLevel is a single order book price level. In a delta an Amount <= 0
// means the level was removed.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Trade is a normalized trade execution.
type Trade struct {
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	ID             string    `json:"id,omitempty"`
	Price          float64   `json:"price"`
	Amount         float64   `json:"amount"`
	Side           string    `json:"side"`
	Timestamp      time.Time `json:"timestamp"`
	LocalTimestamp time.Time `json:"localTimestamp"`
}

func (t *Trade) Kind() string         { return KindTrade }
func (t *Trade) LocalTime() time.Time { return t.LocalTimestamp }

func (t Trade) MarshalJSON() ([]byte, error) {
	type alias Trade
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindTrade, alias(t)})
}

// BookChange is an order book snapshot or delta. Snapshots fully replace
// prior book state for the symbol.
type BookChange struct {
	Symbol         string       `json:"symbol"`
	Exchange       string       `json:"exchange"`
	IsSnapshot     bool         `json:"isSnapshot"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	Timestamp      time.Time    `json:"timestamp"`
	LocalTimestamp time.Time    `json:"localTimestamp"`
}

func (b *BookChange) Kind() string         { return KindBookChange }
func (b *BookChange) LocalTime() time.Time { return b.LocalTimestamp }

func (b BookChange) MarshalJSON() ([]byte, error) {
	type alias BookChange
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindBookChange, alias(b)})
}

// BookTicker carries the best bid and ask for a symbol.
type BookTicker struct {
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	AskAmount      *float64  `json:"askAmount"`
	AskPrice       *float64  `json:"askPrice"`
	BidPrice       *float64  `json:"bidPrice"`
	BidAmount      *float64  `json:"bidAmount"`
	Timestamp      time.Time `json:"timestamp"`
	LocalTimestamp time.Time `json:"localTimestamp"`
}

func (b *BookTicker) Kind() string         { return KindBookTicker }
func (b *BookTicker) LocalTime() time.Time { return b.LocalTimestamp }

func (b BookTicker) MarshalJSON() ([]byte, error) {
	type alias BookTicker
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindBookTicker, alias(b)})
}

// DerivativeTicker is the coalesced state of a derivative instrument:
// funding, open interest, mark/index/last price. Optional fields stay nil
// until the venue has reported them at least once.
type DerivativeTicker struct {
	Symbol               string     `json:"symbol"`
	Exchange             string     `json:"exchange"`
	LastPrice            *float64   `json:"lastPrice"`
	OpenInterest         *float64   `json:"openInterest"`
	FundingRate          *float64   `json:"fundingRate"`
	FundingTimestamp     *time.Time `json:"fundingTimestamp"`
	PredictedFundingRate *float64   `json:"predictedFundingRate"`
	IndexPrice           *float64   `json:"indexPrice"`
	MarkPrice            *float64   `json:"markPrice"`
	Timestamp            time.Time  `json:"timestamp"`
	LocalTimestamp       time.Time  `json:"localTimestamp"`
}

func (d *DerivativeTicker) Kind() string         { return KindDerivativeTicker }
func (d *DerivativeTicker) LocalTime() time.Time { return d.LocalTimestamp }

func (d DerivativeTicker) MarshalJSON() ([]byte, error) {
	type alias DerivativeTicker
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindDerivativeTicker, alias(d)})
}

// OptionSummary carries option instrument state: greeks, implied
// volatilities and reference prices.
type OptionSummary struct {
	Symbol             string     `json:"symbol"`
	Exchange           string     `json:"exchange"`
	OptionType         string     `json:"optionType"`
	StrikePrice        *float64   `json:"strikePrice"`
	Expiry             *time.Time `json:"expiry"`
	BestBidPrice       *float64   `json:"bestBidPrice"`
	BestBidAmount      *float64   `json:"bestBidAmount"`
	BestBidIV          *float64   `json:"bestBidIV"`
	BestAskPrice       *float64   `json:"bestAskPrice"`
	BestAskAmount      *float64   `json:"bestAskAmount"`
	BestAskIV          *float64   `json:"bestAskIV"`
	MarkPrice          *float64   `json:"markPrice"`
	MarkIV             *float64   `json:"markIV"`
	UnderlyingPrice    *float64   `json:"underlyingPrice"`
	UnderlyingIndex    string     `json:"underlyingIndex,omitempty"`
	OpenInterest       *float64   `json:"openInterest"`
	Delta              *float64   `json:"delta"`
	Gamma              *float64   `json:"gamma"`
	Vega               *float64   `json:"vega"`
	Theta              *float64   `json:"theta"`
	Rho                *float64   `json:"rho"`
	Timestamp          time.Time  `json:"timestamp"`
	LocalTimestamp     time.Time  `json:"localTimestamp"`
}

func (o *OptionSummary) Kind() string         { return KindOptionSummary }
func (o *OptionSummary) LocalTime() time.Time { return o.LocalTimestamp }

func (o OptionSummary) MarshalJSON() ([]byte, error) {
	type alias OptionSummary
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindOptionSummary, alias(o)})
}

// Liquidation is a normalized forced liquidation order.
type Liquidation struct {
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	ID             string    `json:"id,omitempty"`
	Price          float64   `json:"price"`
	Amount         float64   `json:"amount"`
	Side           string    `json:"side"`
	Timestamp      time.Time `json:"timestamp"`
	LocalTimestamp time.Time `json:"localTimestamp"`
}

func (l *Liquidation) Kind() string         { return KindLiquidation }
func (l *Liquidation) LocalTime() time.Time { return l.LocalTimestamp }

func (l Liquidation) MarshalJSON() ([]byte, error) {
	type alias Liquidation
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindLiquidation, alias(l)})
}

// Disconnect signals that the upstream connection for an exchange was lost.
// All sequence-dependent state scoped to the exchange must be discarded.
type Disconnect struct {
	Exchange       string    `json:"exchange"`
	LocalTimestamp time.Time `json:"localTimestamp"`
}

func (d *Disconnect) Kind() string         { return KindDisconnect }
func (d *Disconnect) LocalTime() time.Time { return d.LocalTimestamp }

func (d Disconnect) MarshalJSON() ([]byte, error) {
	type alias Disconnect
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindDisconnect, alias(d)})
}
