package binance

import (
	"encoding/json"
	"strings"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

type depthPayload struct {
	EventType        string      `json:"e"`
	EventTime        int64       `json:"E"`
	TransactionTime  int64       `json:"T"`
	Symbol           string      `json:"s"`
	FirstUpdateID    int64       `json:"U"`
	LastUpdateID     int64       `json:"u"`
	PrevLastUpdateID int64       `json:"pu"`
	Bids             [][2]string `json:"b"`
	Asks             [][2]string `json:"a"`
}

type depthSnapshotPayload struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	EventTime    int64       `json:"E"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// BookMapper translates diff depth streams plus injected REST depth
// snapshots into canonical book changes, reconstructing consistent book
// state per symbol.
type BookMapper struct {
	exchange      string
	reconstructor *mapper.Reconstructor
}

// Spot and futures diff depth streams bracket the snapshot differently.
func overlapFor(exchange string) mapper.OverlapFunc {
	if exchange == ExchangeFutures {
		return func(last, start, end int64) bool {
			return start <= last && end >= last
		}
	}
	return func(last, start, end int64) bool {
		return start <= last+1 && end >= last+1
	}
}

func NewBookMapper(exchange string, opts BookOptions) *BookMapper {
	return &BookMapper{
		exchange: exchange,
		reconstructor: mapper.NewReconstructor(mapper.ReconstructorOptions{
			Exchange:            exchange,
			Overlap:             overlapFor(exchange),
			BufferSize:          opts.BufferSize,
			IgnoreOverlapErrors: opts.IgnoreOverlapErrors,
		}),
	}
}

func (m *BookMapper) CanHandle(raw []byte) bool {
	_, channel, ok := envelopeChannel(raw)
	return ok && (channel == "depth" || channel == "depthSnapshot")
}

func (m *BookMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{
		{Channel: "depth", Symbols: lowercase(symbols)},
		{Channel: "depthSnapshot", Symbols: lowercase(symbols)},
	}
}

func (m *BookMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}

	var update mapper.BookUpdate
	if strings.Contains(env.Stream, "@depthSnapshot") {
		var snap depthSnapshotPayload
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return nil, nil
		}
		timestamp := localTimestamp
		if snap.EventTime > 0 {
			timestamp = millis(snap.EventTime)
		}
		update = mapper.BookUpdate{
			Symbol:     symbolOf(env.Stream),
			IsSnapshot: true,
			Bids:       parseLevels(snap.Bids),
			Asks:       parseLevels(snap.Asks),
			StartSeq:   snap.LastUpdateID,
			EndSeq:     snap.LastUpdateID,
			Timestamp:  timestamp,
		}
	} else {
		var delta depthPayload
		if err := json.Unmarshal(env.Data, &delta); err != nil {
			return nil, nil
		}
		update = mapper.BookUpdate{
			Symbol:    delta.Symbol,
			Bids:      parseLevels(delta.Bids),
			Asks:      parseLevels(delta.Asks),
			StartSeq:  delta.FirstUpdateID,
			EndSeq:    delta.LastUpdateID,
			Timestamp: millis(delta.EventTime),
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
