package kucoin

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/models"
)

type executionPayload struct {
	Symbol   string  `json:"symbol"`
	Sequence int64   `json:"sequence"`
	Side     string  `json:"side"`
	Size     float64 `json:"size"`
	Price    string  `json:"price"`
	TradeID  string  `json:"tradeId"`
	TS       int64   `json:"ts"`
}

// TradesMapper translates the /contractMarket/execution topic.
type TradesMapper struct{}

func NewTradesMapper() *TradesMapper { return &TradesMapper{} }

func (m *TradesMapper) CanHandle(raw []byte) bool {
	env, channel, ok := decodeEnvelope(raw)
	return ok && channel == "/contractMarket/execution" && env.Subject == "match"
}

func (m *TradesMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "/contractMarket/execution", Symbols: symbols}}
}

func (m *TradesMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, _, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var e executionPayload
	if err := json.Unmarshal(env.Data, &e); err != nil {
		return nil, nil
	}

	price, err := strconv.ParseFloat(e.Price, 64)
	if err != nil {
		return nil, nil
	}
	side := e.Side
	if side != models.SideBuy && side != models.SideSell {
		side = models.SideUnknown
	}

	return []models.Event{&models.Trade{
		Symbol:         e.Symbol,
		Exchange:       Exchange,
		ID:             e.TradeID,
		Price:          price,
		Amount:         e.Size,
		Side:           side,
		Timestamp:      millisOf(e.TS),
		LocalTimestamp: localTimestamp,
	}}, nil
}

func (m *TradesMapper) Reset() {}
