package bybit

import (
	"encoding/json"
	"time"

	"tickflow/mapper"
	"tickflow/models"
)

type orderbookPayload struct {
	Symbol   string      `json:"s"`
	Bids     [][2]string `json:"b"`
	Asks     [][2]string `json:"a"`
	UpdateID int64       `json:"u"`
	Seq      int64       `json:"seq"`
}

// BookMapper translates the orderbook.N topic. Bybit marks each message as
// snapshot or delta itself and resends a snapshot on every (re)subscribe,
// so no overlap predicate is needed: the first delta after a snapshot is
// continuous by protocol.
type BookMapper struct {
	reconstructor *mapper.Reconstructor
}

func NewBookMapper(opts BookOptions) *BookMapper {
	return &BookMapper{
		reconstructor: mapper.NewReconstructor(mapper.ReconstructorOptions{
			Exchange:            Exchange,
			BufferSize:          opts.BufferSize,
			IgnoreOverlapErrors: opts.IgnoreOverlapErrors,
		}),
	}
}

func (m *BookMapper) CanHandle(raw []byte) bool {
	_, channel, ok := decodeEnvelope(raw)
	return ok && channel == "orderbook"
}

func (m *BookMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "orderbook.50", Symbols: symbols}}
}

func (m *BookMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, _, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var book orderbookPayload
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return nil, nil
	}

	// u resets to 1 when the matching service restarts; the accompanying
	// type tag is snapshot in that case, so the reconstructor restarts too.
	change, err := m.reconstructor.Apply(mapper.BookUpdate{
		Symbol:     book.Symbol,
		IsSnapshot: env.Type == "snapshot",
		Bids:       parseLevels(book.Bids),
		Asks:       parseLevels(book.Asks),
		StartSeq:   book.UpdateID,
		EndSeq:     book.UpdateID,
		Timestamp:  millis(env.TS),
	}, localTimestamp)
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
