package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/models"
)

type forceOrderPayload struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		Quantity     string `json:"q"`
		Price        string `json:"p"`
		AveragePrice string `json:"ap"`
		TradeTime    int64  `json:"T"`
	} `json:"o"`
}

// LiquidationsMapper translates the futures forced liquidation stream.
type LiquidationsMapper struct {
	exchange string
}

func NewLiquidationsMapper(exchange string) *LiquidationsMapper {
	return &LiquidationsMapper{exchange: exchange}
}

func (m *LiquidationsMapper) CanHandle(raw []byte) bool {
	_, channel, ok := envelopeChannel(raw)
	return ok && channel == "forceOrder"
}

func (m *LiquidationsMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "forceOrder", Symbols: lowercase(symbols)}}
}

func (m *LiquidationsMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}
	var p forceOrderPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, nil
	}

	price, err := strconv.ParseFloat(p.Order.AveragePrice, 64)
	if err != nil || price == 0 {
		if price, err = strconv.ParseFloat(p.Order.Price, 64); err != nil {
			return nil, nil
		}
	}
	amount, err := strconv.ParseFloat(p.Order.Quantity, 64)
	if err != nil {
		return nil, nil
	}

	return []models.Event{&models.Liquidation{
		Symbol:         p.Order.Symbol,
		Exchange:       m.exchange,
		Price:          price,
		Amount:         amount,
		Side:           strings.ToLower(p.Order.Side),
		Timestamp:      millis(p.Order.TradeTime),
		LocalTimestamp: localTimestamp,
	}}, nil
}

func (m *LiquidationsMapper) Reset() {}
