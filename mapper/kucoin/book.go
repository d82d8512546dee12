package kucoin

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

// level2 deltas encode one level change as "price,side,quantity".
type level2Payload struct {
	Sequence  int64  `json:"sequence"`
	Change    string `json:"change"`
	Timestamp int64  `json:"timestamp"`
}

// REST depth snapshots use numeric [price, size] pairs.
type level2SnapshotPayload struct {
	Symbol   string       `json:"symbol"`
	Sequence int64        `json:"sequence"`
	Bids     [][2]float64 `json:"bids"`
	Asks     [][2]float64 `json:"asks"`
	TS       int64        `json:"ts"`
}

// BookMapper translates the /contractMarket/level2 topic plus injected
// REST snapshots. Each delta carries exactly one sequence number, so the
// first delta after a snapshot must be its direct successor.
type BookMapper struct {
	reconstructor *mapper.Reconstructor
}

func NewBookMapper(opts BookOptions) *BookMapper {
	return &BookMapper{
		reconstructor: mapper.NewReconstructor(mapper.ReconstructorOptions{
			Exchange: Exchange,
			Overlap: func(last, start, end int64) bool {
				return start <= last+1 && end >= last+1
			},
			BufferSize:          opts.BufferSize,
			IgnoreOverlapErrors: opts.IgnoreOverlapErrors,
		}),
	}
}

func (m *BookMapper) CanHandle(raw []byte) bool {
	_, channel, ok := decodeEnvelope(raw)
	return ok && (channel == "/contractMarket/level2" || channel == SnapshotTopic)
}

func (m *BookMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{
		{Channel: "/contractMarket/level2", Symbols: symbols},
		{Channel: SnapshotTopic, Symbols: symbols},
	}
}

func (m *BookMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, channel, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	_, symbol := topicParts(env.Topic)

	var update mapper.BookUpdate
	if channel == SnapshotTopic {
		var snap level2SnapshotPayload
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return nil, nil
		}
		if snap.Symbol != "" {
			symbol = snap.Symbol
		}
		timestamp := localTimestamp
		if snap.TS > 0 {
			timestamp = millisOf(snap.TS)
		}
		update = mapper.BookUpdate{
			Symbol:     symbol,
			IsSnapshot: true,
			Bids:       numericLevels(snap.Bids),
			Asks:       numericLevels(snap.Asks),
			StartSeq:   snap.Sequence,
			EndSeq:     snap.Sequence,
			Timestamp:  timestamp,
		}
	} else {
		var delta level2Payload
		if err := json.Unmarshal(env.Data, &delta); err != nil {
			return nil, nil
		}
		price, side, amount, ok := parseChange(delta.Change)
		if !ok {
			return nil, nil
		}
		update = mapper.BookUpdate{
			Symbol:    symbol,
			StartSeq:  delta.Sequence,
			EndSeq:    delta.Sequence,
			Timestamp: millisOf(delta.Timestamp),
		}
		level := []models.PriceLevel{{Price: price, Amount: amount}}
		if side == "buy" {
			update.Bids = level
		} else {
			update.Asks = level
		}
	}

	change, err := m.reconstructor.Apply(update, localTimestamp)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return nil, nil
	}
	return []models.Event{change}, nil
}

func (m *BookMapper) Reset() {
	m.reconstructor.Reset()
}

// parseChange decodes the "price,side,quantity" triple of a level2 delta.
func parseChange(change string) (price float64, side string, amount float64, ok bool) {
	parts := strings.Split(change, ",")
	if len(parts) != 3 {
		return 0, "", 0, false
	}
	price, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, "", 0, false
	}
	amount, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, "", 0, false
	}
	return price, parts[1], amount, true
}

func numericLevels(raw [][2]float64) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		out = append(out, models.PriceLevel{Price: pair[0], Amount: pair[1]})
	}
	return out
}
