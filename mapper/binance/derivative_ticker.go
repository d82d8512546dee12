package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

type markPricePayload struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

type miniTickerPayload struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

type openInterestPayload struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// DerivativeTickerMapper coalesces the markPrice, ticker and openInterest
// channels into derivative ticker snapshots, emitting only when an
// observable field changed.
type DerivativeTickerMapper struct {
	exchange    string
	accumulator *mapper.TickerAccumulator
}

func NewDerivativeTickerMapper(exchange string) *DerivativeTickerMapper {
	return &DerivativeTickerMapper{
		exchange:    exchange,
		accumulator: mapper.NewTickerAccumulator(),
	}
}

func (m *DerivativeTickerMapper) CanHandle(raw []byte) bool {
	_, channel, ok := envelopeChannel(raw)
	return ok && (channel == "markPrice" || channel == "ticker" || channel == "openInterest")
}

func (m *DerivativeTickerMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{
		{Channel: "markPrice", Symbols: lowercase(symbols)},
		{Channel: "ticker", Symbols: lowercase(symbols)},
		{Channel: "openInterest", Symbols: lowercase(symbols)},
	}
}

func (m *DerivativeTickerMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, channel, ok := envelopeChannel(raw)
	if !ok {
		return nil, nil
	}

	var pending *mapper.PendingTicker
	switch channel {
	case "markPrice":
		var p markPricePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, nil
		}
		pending = m.accumulator.Get(p.Symbol, m.exchange)
		if v, err := strconv.ParseFloat(p.MarkPrice, 64); err == nil {
			pending.UpdateMarkPrice(v)
		}
		if v, err := strconv.ParseFloat(p.IndexPrice, 64); err == nil {
			pending.UpdateIndexPrice(v)
		}
		if v, err := strconv.ParseFloat(p.FundingRate, 64); err == nil {
			pending.UpdateFundingRate(v)
		}
		if p.NextFundingTime > 0 {
			pending.UpdateFundingTimestamp(millis(p.NextFundingTime))
		}
		pending.UpdateTimestamp(millis(p.EventTime))

	case "ticker":
		var p miniTickerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, nil
		}
		pending = m.accumulator.Get(p.Symbol, m.exchange)
		if v, err := strconv.ParseFloat(p.LastPrice, 64); err == nil {
			pending.UpdateLastPrice(v)
		}
		pending.UpdateTimestamp(millis(p.EventTime))

	case "openInterest":
		var p openInterestPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, nil
		}
		pending = m.accumulator.Get(p.Symbol, m.exchange)
		if v, err := strconv.ParseFloat(p.OpenInterest, 64); err == nil {
			pending.UpdateOpenInterest(v)
		}
		if p.Time > 0 {
			pending.UpdateTimestamp(millis(p.Time))
		}

	default:
		return nil, nil
	}

	if !pending.HasChanged() {
		return nil, nil
	}
	return []models.Event{pending.Snapshot(localTimestamp)}, nil
}

func (m *DerivativeTickerMapper) Reset() {
	m.accumulator.Reset()
}
