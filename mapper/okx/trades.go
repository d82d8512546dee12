package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/models"
)

type tradePayload struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Price   string `json:"px"`
	Size    string `json:"sz"`
	Side    string `json:"side"`
	TS      string `json:"ts"`
}

// TradesMapper translates the trades channel.
type TradesMapper struct{}

func NewTradesMapper() *TradesMapper { return &TradesMapper{} }

func (m *TradesMapper) CanHandle(raw []byte) bool {
	env, ok := decodeEnvelope(raw)
	return ok && env.Arg.Channel == "trades"
}

func (m *TradesMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "trades", Symbols: symbols}}
}

func (m *TradesMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var trades []tradePayload
	if err := json.Unmarshal(env.Data, &trades); err != nil {
		return nil, nil
	}

	events := make([]models.Event, 0, len(trades))
	for _, t := range trades {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(t.Size, 64)
		if err != nil {
			continue
		}
		timestamp := localTimestamp
		if ts, ok := parseMillis(t.TS); ok {
			timestamp = ts
		}
		side := t.Side
		if side != models.SideBuy && side != models.SideSell {
			side = models.SideUnknown
		}
		events = append(events, &models.Trade{
			Symbol:         t.InstID,
			Exchange:       Exchange,
			ID:             t.TradeID,
			Price:          price,
			Amount:         amount,
			Side:           side,
			Timestamp:      timestamp,
			LocalTimestamp: localTimestamp,
		})
	}
	return events, nil
}

func (m *TradesMapper) Reset() {}
