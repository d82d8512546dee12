package bybit

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/models"
)

type tradePayload struct {
	TradeTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Volume    string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

// TradesMapper translates the publicTrade topic. One message can carry
// multiple executions.
type TradesMapper struct{}

func NewTradesMapper() *TradesMapper { return &TradesMapper{} }

func (m *TradesMapper) CanHandle(raw []byte) bool {
	_, channel, ok := decodeEnvelope(raw)
	return ok && channel == "publicTrade"
}

func (m *TradesMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "publicTrade", Symbols: symbols}}
}

func (m *TradesMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, _, ok := decodeEnvelope(raw)
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
		amount, err := strconv.ParseFloat(t.Volume, 64)
		if err != nil {
			continue
		}
		events = append(events, &models.Trade{
			Symbol:         t.Symbol,
			Exchange:       Exchange,
			ID:             t.TradeID,
			Price:          price,
			Amount:         amount,
			Side:           strings.ToLower(t.Side),
			Timestamp:      millis(t.TradeTime),
			LocalTimestamp: localTimestamp,
		})
	}
	return events, nil
}

func (m *TradesMapper) Reset() {}
