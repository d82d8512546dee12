package bybit

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/models"
)

type liquidationPayload struct {
	UpdatedTime int64  `json:"updatedTime"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Size        string `json:"size"`
	Price       string `json:"price"`
}

// LiquidationsMapper translates the liquidation topic.
type LiquidationsMapper struct{}

func NewLiquidationsMapper() *LiquidationsMapper { return &LiquidationsMapper{} }

func (m *LiquidationsMapper) CanHandle(raw []byte) bool {
	_, channel, ok := decodeEnvelope(raw)
	return ok && channel == "liquidation"
}

func (m *LiquidationsMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "liquidation", Symbols: symbols}}
}

func (m *LiquidationsMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, _, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var l liquidationPayload
	if err := json.Unmarshal(env.Data, &l); err != nil {
		return nil, nil
	}

	price, err := strconv.ParseFloat(l.Price, 64)
	if err != nil {
		return nil, nil
	}
	amount, err := strconv.ParseFloat(l.Size, 64)
	if err != nil {
		return nil, nil
	}

	timestamp := millis(env.TS)
	if l.UpdatedTime > 0 {
		timestamp = millis(l.UpdatedTime)
	}

	return []models.Event{&models.Liquidation{
		Symbol:         l.Symbol,
		Exchange:       Exchange,
		Price:          price,
		Amount:         amount,
		Side:           strings.ToLower(l.Side),
		Timestamp:      timestamp,
		LocalTimestamp: localTimestamp,
	}}, nil
}

func (m *LiquidationsMapper) Reset() {}
