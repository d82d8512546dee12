// Package bybit translates Bybit v5 linear websocket topics into canonical
// events. Every public message carries a topic ("publicTrade.BTCUSDT",
// "orderbook.50.BTCUSDT"), a snapshot/delta type tag and a server timestamp.
package bybit

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

// Exchange is the canonical exchange id for Bybit linear perpetuals.
const Exchange = "bybit"

type topicEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

// topicParts splits "orderbook.50.BTCUSDT" into its channel ("orderbook")
// and symbol ("BTCUSDT", always the last segment).
func topicParts(topic string) (channel, symbol string) {
	parts := strings.Split(topic, ".")
	if len(parts) < 2 {
		return topic, ""
	}
	return parts[0], parts[len(parts)-1]
}

func decodeEnvelope(raw []byte) (topicEnvelope, string, bool) {
	var env topicEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Topic == "" {
		return env, "", false
	}
	channel, _ := topicParts(env.Topic)
	return env, channel, true
}

func parseLevels(raw [][2]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Amount: amount})
	}
	return out
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// BookOptions configures book reconstruction for one dispatcher.
type BookOptions struct {
	BufferSize          int
	IgnoreOverlapErrors bool
}

// NewDispatcher wires the full mapper set for Bybit linear markets.
func NewDispatcher(bookOpts BookOptions) *mapper.Dispatcher {
	return mapper.NewDispatcher(Exchange,
		NewTradesMapper(),
		NewBookMapper(bookOpts),
		NewTickersMapper(),
		NewLiquidationsMapper(),
	)
}
