package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/models"
)

type tradePayload struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// TradesMapper translates the trade stream.
type TradesMapper struct {
	exchange string
}

func NewTradesMapper(exchange string) *TradesMapper {
	return &TradesMapper{exchange: exchange}
}

func (m *TradesMapper) CanHandle(raw []byte) bool {
	_, channel, ok := envelopeChannel(raw)
	return ok && channel == "trade"
}

func (m *TradesMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "trade", Symbols: lowercase(symbols)}}
}

func (m *TradesMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}
	var t tradePayload
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, nil
	}

	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, nil
	}
	amount, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return nil, nil
	}

	// the aggressor bought when the buyer was not the maker
	side := models.SideBuy
	if t.BuyerIsMaker {
		side = models.SideSell
	}

	return []models.Event{&models.Trade{
		Symbol:         t.Symbol,
		Exchange:       m.exchange,
		ID:             strconv.FormatInt(t.TradeID, 10),
		Price:          price,
		Amount:         amount,
		Side:           side,
		Timestamp:      millis(t.TradeTime),
		LocalTimestamp: localTimestamp,
	}}, nil
}

func (m *TradesMapper) Reset() {}

func lowercase(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ToLower(s)
	}
	return out
}
