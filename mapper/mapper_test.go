package mapper

import (
	"bytes"
	"testing"
	"time"

	"tickflow/models"
)

type fakeMapper struct {
	prefix string
	events []models.Event
	resets int
	filter models.Filter
}

func (f *fakeMapper) CanHandle(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte(f.prefix))
}

func (f *fakeMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: f.filter.Channel, Symbols: symbols}}
}

func (f *fakeMapper) Map(raw []byte, local time.Time) ([]models.Event, error) {
	return f.events, nil
}

func (f *fakeMapper) Reset() { f.resets++ }

func TestDispatcherRoutesToMatchingMappers(t *testing.T) {
	tradeEv := &models.Trade{Symbol: "BTCUSDT"}
	bookEv := &models.BookChange{Symbol: "BTCUSDT"}
	trades := &fakeMapper{prefix: `{"t`, events: []models.Event{tradeEv}}
	books := &fakeMapper{prefix: `{`, events: []models.Event{bookEv}}

	d := NewDispatcher("binance", trades, books)

	events, err := d.Dispatch([]byte(`{"trade":1}`), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// both match; outputs concatenate in registration order
	if len(events) != 2 || events[0] != models.Event(tradeEv) || events[1] != models.Event(bookEv) {
		t.Fatalf("events = %+v", events)
	}

	events, err = d.Dispatch([]byte(`{"book":1}`), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(events) != 1 || events[0] != models.Event(bookEv) {
		t.Fatalf("events = %+v", events)
	}

	// unrecognized messages are silently dropped
	events, err = d.Dispatch([]byte(`[]`), time.Unix(0, 0))
	if err != nil || len(events) != 0 {
		t.Fatalf("events = %+v, err = %v", events, err)
	}
}

func TestDispatcherResetPropagates(t *testing.T) {
	a := &fakeMapper{}
	b := &fakeMapper{}
	d := NewDispatcher("binance", a, b)
	d.Reset()
	if a.resets != 1 || b.resets != 1 {
		t.Fatalf("resets = %d/%d, want 1/1", a.resets, b.resets)
	}
}

func TestDispatcherMergesFilters(t *testing.T) {
	a := &fakeMapper{filter: models.Filter{Channel: "trade"}}
	b := &fakeMapper{filter: models.Filter{Channel: "depth"}}
	d := NewDispatcher("binance", a, b)

	filters := d.Filters([]string{"BTCUSDT"})
	if len(filters) != 2 || filters[0].Channel != "trade" || filters[1].Channel != "depth" {
		t.Fatalf("filters = %+v", filters)
	}
}
