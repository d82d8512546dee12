package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/models"
)

type bookTickerPayload struct {
	UpdateID  int64  `json:"u"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
	EventTime int64  `json:"E"`
}

// BookTickerMapper translates the best bid/ask stream. Spot payloads carry
// no event time, so the local receipt time stands in for it.
type BookTickerMapper struct {
	exchange string
}

func NewBookTickerMapper(exchange string) *BookTickerMapper {
	return &BookTickerMapper{exchange: exchange}
}

func (m *BookTickerMapper) CanHandle(raw []byte) bool {
	_, channel, ok := envelopeChannel(raw)
	return ok && channel == "bookTicker"
}

func (m *BookTickerMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "bookTicker", Symbols: lowercase(symbols)}}
}

func (m *BookTickerMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}
	var t bookTickerPayload
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, nil
	}

	timestamp := localTimestamp
	if t.EventTime > 0 {
		timestamp = millis(t.EventTime)
	}

	return []models.Event{&models.BookTicker{
		Symbol:         t.Symbol,
		Exchange:       m.exchange,
		BidPrice:       parseOptional(t.BidPrice),
		BidAmount:      parseOptional(t.BidQty),
		AskPrice:       parseOptional(t.AskPrice),
		AskAmount:      parseOptional(t.AskQty),
		Timestamp:      timestamp,
		LocalTimestamp: localTimestamp,
	}}, nil
}

func (m *BookTickerMapper) Reset() {}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
