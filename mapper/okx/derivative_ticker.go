package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

type fundingRatePayload struct {
	InstID      string `json:"instId"`
	FundingRate string `json:"fundingRate"`
	NextRate    string `json:"nextFundingRate"`
	FundingTime string `json:"fundingTime"`
	TS          string `json:"ts"`
}

type openInterestPayload struct {
	InstID       string `json:"instId"`
	OpenInterest string `json:"oi"`
	TS           string `json:"ts"`
}

type markPricePayload struct {
	InstID    string `json:"instId"`
	MarkPrice string `json:"markPx"`
	TS        string `json:"ts"`
}

type indexTickerPayload struct {
	InstID     string `json:"instId"`
	IndexPrice string `json:"idxPx"`
	TS         string `json:"ts"`
}

type tickerPayload struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	TS     string `json:"ts"`
}

// DerivativeTickerMapper coalesces the funding-rate, open-interest,
// mark-price, index-tickers and tickers channels into derivative ticker
// snapshots, emitting only when an observable field changed.
type DerivativeTickerMapper struct {
	accumulator *mapper.TickerAccumulator
}

func NewDerivativeTickerMapper() *DerivativeTickerMapper {
	return &DerivativeTickerMapper{accumulator: mapper.NewTickerAccumulator()}
}

var derivativeChannels = map[string]bool{
	"funding-rate":  true,
	"open-interest": true,
	"mark-price":    true,
	"index-tickers": true,
	"tickers":       true,
}

func (m *DerivativeTickerMapper) CanHandle(raw []byte) bool {
	env, ok := decodeEnvelope(raw)
	return ok && derivativeChannels[env.Arg.Channel]
}

func (m *DerivativeTickerMapper) Filters(symbols []string) []models.Filter {
	out := make([]models.Filter, 0, len(derivativeChannels))
	for _, channel := range []string{"funding-rate", "open-interest", "mark-price", "index-tickers", "tickers"} {
		out = append(out, models.Filter{Channel: channel, Symbols: symbols})
	}
	return out
}

func (m *DerivativeTickerMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}

	var events []models.Event
	emit := func(pending *mapper.PendingTicker, ts string) {
		if t, ok := parseMillis(ts); ok {
			pending.UpdateTimestamp(t)
		}
		if pending.HasChanged() {
			events = append(events, pending.Snapshot(localTimestamp))
		}
	}

	switch env.Arg.Channel {
	case "funding-rate":
		var pages []fundingRatePayload
		if err := json.Unmarshal(env.Data, &pages); err != nil {
			return nil, nil
		}
		for _, p := range pages {
			pending := m.accumulator.Get(p.InstID, Exchange)
			if v, err := strconv.ParseFloat(p.FundingRate, 64); err == nil {
				pending.UpdateFundingRate(v)
			}
			if v, err := strconv.ParseFloat(p.NextRate, 64); err == nil {
				pending.UpdatePredictedFundingRate(v)
			}
			if t, ok := parseMillis(p.FundingTime); ok {
				pending.UpdateFundingTimestamp(t)
			}
			emit(pending, p.TS)
		}

	case "open-interest":
		var pages []openInterestPayload
		if err := json.Unmarshal(env.Data, &pages); err != nil {
			return nil, nil
		}
		for _, p := range pages {
			pending := m.accumulator.Get(p.InstID, Exchange)
			if v, err := strconv.ParseFloat(p.OpenInterest, 64); err == nil {
				pending.UpdateOpenInterest(v)
			}
			emit(pending, p.TS)
		}

	case "mark-price":
		var pages []markPricePayload
		if err := json.Unmarshal(env.Data, &pages); err != nil {
			return nil, nil
		}
		for _, p := range pages {
			pending := m.accumulator.Get(p.InstID, Exchange)
			if v, err := strconv.ParseFloat(p.MarkPrice, 64); err == nil {
				pending.UpdateMarkPrice(v)
			}
			emit(pending, p.TS)
		}

	case "index-tickers":
		var pages []indexTickerPayload
		if err := json.Unmarshal(env.Data, &pages); err != nil {
			return nil, nil
		}
		for _, p := range pages {
			pending := m.accumulator.Get(p.InstID, Exchange)
			if v, err := strconv.ParseFloat(p.IndexPrice, 64); err == nil {
				pending.UpdateIndexPrice(v)
			}
			emit(pending, p.TS)
		}

	case "tickers":
		var pages []tickerPayload
		if err := json.Unmarshal(env.Data, &pages); err != nil {
			return nil, nil
		}
		for _, p := range pages {
			pending := m.accumulator.Get(p.InstID, Exchange)
			if v, err := strconv.ParseFloat(p.Last, 64); err == nil {
				pending.UpdateLastPrice(v)
			}
			emit(pending, p.TS)
		}
	}

	return events, nil
}

func (m *DerivativeTickerMapper) Reset() {
	m.accumulator.Reset()
}
