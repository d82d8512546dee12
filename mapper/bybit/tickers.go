package bybit

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

// Bybit ticker deltas are partial: only the changed fields are present, the
// rest decode to empty strings and must not clobber accumulated state.
type tickerPayload struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	IndexPrice      string `json:"indexPrice"`
	MarkPrice       string `json:"markPrice"`
	OpenInterest    string `json:"openInterest"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

// TickersMapper coalesces partial ticker payloads into derivative ticker
// snapshots, emitting only when an observable field changed.
type TickersMapper struct {
	accumulator *mapper.TickerAccumulator
}

func NewTickersMapper() *TickersMapper {
	return &TickersMapper{accumulator: mapper.NewTickerAccumulator()}
}

func (m *TickersMapper) CanHandle(raw []byte) bool {
	_, channel, ok := decodeEnvelope(raw)
	return ok && channel == "tickers"
}

func (m *TickersMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "tickers", Symbols: symbols}}
}

func (m *TickersMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, _, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var t tickerPayload
	if err := json.Unmarshal(env.Data, &t); err != nil || t.Symbol == "" {
		return nil, nil
	}

	pending := m.accumulator.Get(t.Symbol, Exchange)
	applyIfSet(t.LastPrice, pending.UpdateLastPrice)
	applyIfSet(t.IndexPrice, pending.UpdateIndexPrice)
	applyIfSet(t.MarkPrice, pending.UpdateMarkPrice)
	applyIfSet(t.OpenInterest, pending.UpdateOpenInterest)
	applyIfSet(t.FundingRate, pending.UpdateFundingRate)
	if ms, err := strconv.ParseInt(t.NextFundingTime, 10, 64); err == nil && ms > 0 {
		pending.UpdateFundingTimestamp(millis(ms))
	}
	pending.UpdateTimestamp(millis(env.TS))

	if !pending.HasChanged() {
		return nil, nil
	}
	return []models.Event{pending.Snapshot(localTimestamp)}, nil
}

func (m *TickersMapper) Reset() {
	m.accumulator.Reset()
}

func applyIfSet(s string, update func(float64)) {
	if s == "" {
		return
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		update(v)
	}
}
