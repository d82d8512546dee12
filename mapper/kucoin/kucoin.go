// Package kucoin translates KuCoin futures websocket topics into canonical
// events. Messages carry a topic like "/contractMarket/execution:XBTUSDTM";
// level2 order book snapshots are fetched over REST by the reader and
// injected under the synthetic level2Snapshot topic.
package kucoin

import (
	"encoding/json"
	"strings"
	"time"

	"tickflow/mapper"
)

// Exchange is the canonical exchange id for KuCoin futures.
const Exchange = "kucoin"

// SnapshotTopic is the synthetic topic prefix for injected REST depth
// snapshots.
const SnapshotTopic = "/contractMarket/level2Snapshot"

type topicEnvelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// topicParts splits "/contractMarket/execution:XBTUSDTM" into its channel
// path and symbol.
func topicParts(topic string) (channel, symbol string) {
	channel, symbol, _ = strings.Cut(topic, ":")
	return channel, symbol
}

func decodeEnvelope(raw []byte) (topicEnvelope, string, bool) {
	var env topicEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Topic == "" || len(env.Data) == 0 {
		return env, "", false
	}
	channel, _ := topicParts(env.Topic)
	return env, channel, true
}

// millisOf normalizes KuCoin timestamps, which appear in both millisecond
// and nanosecond precision depending on the channel.
func millisOf(ts int64) time.Time {
	if ts > 1e15 {
		return time.Unix(0, ts).UTC()
	}
	return time.UnixMilli(ts).UTC()
}

// BookOptions configures book reconstruction for one dispatcher.
type BookOptions struct {
	BufferSize          int
	IgnoreOverlapErrors bool
}

// NewDispatcher wires the full mapper set for KuCoin futures.
func NewDispatcher(bookOpts BookOptions) *mapper.Dispatcher {
	return mapper.NewDispatcher(Exchange,
		NewTradesMapper(),
		NewBookMapper(bookOpts),
	)
}
