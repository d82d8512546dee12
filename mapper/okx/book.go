package okx

import (
	"encoding/json"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

type bookPayload struct {
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	TS        string     `json:"ts"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
}

// BookMapper translates the books channel. OKX opens every subscription
// with an action:snapshot message and chains updates via seqId/prevSeqId,
// so the first update after a snapshot must reference the snapshot's seqId
// exactly.
type BookMapper struct {
	reconstructor *mapper.Reconstructor
}

func NewBookMapper(opts BookOptions) *BookMapper {
	return &BookMapper{
		reconstructor: mapper.NewReconstructor(mapper.ReconstructorOptions{
			Exchange: Exchange,
			Overlap: func(last, start, end int64) bool {
				return start == last
			},
			BufferSize:          opts.BufferSize,
			IgnoreOverlapErrors: opts.IgnoreOverlapErrors,
		}),
	}
}

func (m *BookMapper) CanHandle(raw []byte) bool {
	env, ok := decodeEnvelope(raw)
	return ok && (env.Arg.Channel == "books" || env.Arg.Channel == "books-l2-tbt")
}

func (m *BookMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "books", Symbols: symbols}}
}

func (m *BookMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var pages []bookPayload
	if err := json.Unmarshal(env.Data, &pages); err != nil {
		return nil, nil
	}

	var events []models.Event
	for _, page := range pages {
		timestamp := localTimestamp
		if ts, ok := parseMillis(page.TS); ok {
			timestamp = ts
		}
		change, err := m.reconstructor.Apply(mapper.BookUpdate{
			Symbol:     env.Arg.InstID,
			IsSnapshot: env.Action == "snapshot",
			Bids:       parseLevels(page.Bids),
			Asks:       parseLevels(page.Asks),
			StartSeq:   page.PrevSeqID,
			EndSeq:     page.SeqID,
			Timestamp:  timestamp,
		}, localTimestamp)
		if err != nil {
			return events, err
		}
		if change != nil {
			events = append(events, change)
		}
	}
	return events, nil
}

func (m *BookMapper) Reset() {
	m.reconstructor.Reset()
}
