package stream

import (
	"context"
	"testing"
	"time"

	"tickflow/models"
)

type stubComputable struct {
	derived map[string][]models.Event
	flushed []models.Event
}

func (s *stubComputable) OnEvent(ev models.Event) []models.Event {
	if trade, ok := ev.(*models.Trade); ok {
		return s.derived[trade.ID]
	}
	return nil
}

func (s *stubComputable) Flush() []models.Event { return s.flushed }

func TestComputeInterleavesOriginalThenDerived(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	in := tradeAt("binance", ts, "t1")
	d1 := tradeAt("binance", ts, "derived-a")
	d2 := tradeAt("binance", ts, "derived-b")

	first := &stubComputable{derived: map[string][]models.Event{"t1": {d1}}}
	second := &stubComputable{derived: map[string][]models.Event{"t1": {d2}}}

	source := make(chan models.Event, 1)
	source <- in
	close(source)

	out := drain(t, Compute(context.Background(), source, first, second))

	wantIDs := []string{"t1", "derived-a", "derived-b"}
	if len(out) != len(wantIDs) {
		t.Fatalf("got %d events, want %d", len(out), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got := out[i].(*models.Trade).ID; got != want {
			t.Errorf("position %d: %s, want %s", i, got, want)
		}
	}
}

func TestComputeFlushesAtStreamEnd(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	c := &stubComputable{flushed: []models.Event{tradeAt("binance", ts, "leftover")}}

	source := make(chan models.Event)
	close(source)

	out := drain(t, Compute(context.Background(), source, c))
	if len(out) != 1 || out[0].(*models.Trade).ID != "leftover" {
		t.Fatalf("flush output = %+v", out)
	}
}

func TestComputeWithoutComputablesPassesThrough(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	source := make(chan models.Event, 2)
	source <- tradeAt("binance", ts, "t1")
	source <- &models.Disconnect{Exchange: "binance", LocalTimestamp: ts}
	close(source)

	out := drain(t, Compute(context.Background(), source))
	if len(out) != 2 {
		t.Fatalf("got %d events, want 2", len(out))
	}
}
