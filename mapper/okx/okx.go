// Package okx translates OKX v5 websocket channels into canonical events.
// Every public message carries an arg block naming the channel and
// instrument; book messages add a top-level action tag.
package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

// Exchange is the canonical exchange id for OKX.
const Exchange = "okx"

type argEnvelope struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func decodeEnvelope(raw []byte) (argEnvelope, bool) {
	var env argEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Arg.Channel == "" || len(env.Data) == 0 {
		return env, false
	}
	return env, true
}

// OKX book levels are [price, size, deprecated, orderCount] string arrays.
func parseLevels(raw [][]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Amount: amount})
	}
	return out
}

// parseMillis decodes OKX string millisecond timestamps.
func parseMillis(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

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

// BookOptions configures book reconstruction for one dispatcher.
type BookOptions struct {
	BufferSize          int
	IgnoreOverlapErrors bool
}

// NewDispatcher wires the full mapper set for OKX.
func NewDispatcher(bookOpts BookOptions) *mapper.Dispatcher {
	return mapper.NewDispatcher(Exchange,
		NewTradesMapper(),
		NewBookMapper(bookOpts),
		NewDerivativeTickerMapper(),
		NewOptionSummaryMapper(),
	)
}
