// Package binance translates Binance spot and USDT-futures websocket
// streams into canonical events. Messages are expected in the combined
// stream envelope ({"stream":...,"data":...}); REST depth snapshots are
// injected by the reader under a synthetic <symbol>@depthSnapshot stream.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

// Exchange ids served by this package.
const (
	ExchangeSpot    = "binance"
	ExchangeFutures = "binance-futures"
)

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// channelOf extracts the channel from a stream name like
// "btcusdt@depth@100ms".
func channelOf(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func symbolOf(stream string) string {
	name, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(name)
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

func envelopeChannel(raw []byte) (streamEnvelope, string, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Stream == "" {
		return env, "", false
	}
	return env, channelOf(env.Stream), true
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// BookOptions configures book reconstruction for one dispatcher.
type BookOptions struct {
	BufferSize          int
	IgnoreOverlapErrors bool
}

// NewDispatcher wires the full mapper set for the given Binance exchange
// id. Futures-only channels (mark price, liquidations) are registered only
// for ExchangeFutures.
func NewDispatcher(exchange string, bookOpts BookOptions) *mapper.Dispatcher {
	mappers := []mapper.Mapper{
		NewTradesMapper(exchange),
		NewBookMapper(exchange, bookOpts),
		NewBookTickerMapper(exchange),
	}
	if exchange == ExchangeFutures {
		mappers = append(mappers,
			NewDerivativeTickerMapper(exchange),
			NewLiquidationsMapper(exchange),
		)
	}
	return mapper.NewDispatcher(exchange, mappers...)
}
