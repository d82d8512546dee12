package stream

import (
	"context"
	"testing"
	"time"

	"tickflow/models"
)

func runDedup(t *testing.T, opts DedupOptions, events ...models.Event) []models.Event {
	t.Helper()
	source := make(chan models.Event, len(events))
	for _, ev := range events {
		source <- ev
	}
	close(source)
	return drain(t, UniqueTradesOnly(context.Background(), source, opts))
}

func TestDuplicateTradeSuppressed(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	var suppressed []*models.Trade
	opts := DedupOptions{
		OnSuppressed: func(trade *models.Trade, stale bool) {
			if stale {
				t.Errorf("duplicate reported as stale")
			}
			suppressed = append(suppressed, trade)
		},
	}

	out := runDedup(t, opts,
		tradeAt("binance", ts, "42"),
		tradeAt("binance", ts.Add(time.Second), "42"),
		tradeAt("binance", ts.Add(2*time.Second), "43"),
	)

	if len(out) != 2 {
		t.Fatalf("got %d events, want 2", len(out))
	}
	if len(suppressed) != 1 || suppressed[0].ID != "42" {
		t.Fatalf("suppressed = %+v", suppressed)
	}
}

func TestStaleTradeSuppressedOnFirstSighting(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	stale := tradeAt("binance", ts, "old")
	stale.Timestamp = ts.Add(-time.Minute)

	out := runDedup(t, DedupOptions{SkipStaleOlderThan: 10 * time.Second}, stale)
	if len(out) != 0 {
		t.Fatalf("stale trade passed through")
	}
}

func TestTradeWithoutIDAndIndexSymbolsPass(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	noID := tradeAt("binance", ts, "")
	index := tradeAt("deribit", ts, "7")
	index.Symbol = ".BTCUSD"

	out := runDedup(t, DedupOptions{}, noID, noID, index, index)
	if len(out) != 4 {
		t.Fatalf("got %d events, want 4 pass-throughs", len(out))
	}
}

func TestSuppressedIDRecencyRefreshed(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)

	events := []models.Event{
		tradeAt("binance", ts, "1"),
		tradeAt("binance", ts, "2"),
		// replay of "1" refreshes it: "2" is now the oldest
		tradeAt("binance", ts, "1"),
		tradeAt("binance", ts, "3"),
		// window of 2: "2" was evicted, "1" still protected
		tradeAt("binance", ts, "1"),
		tradeAt("binance", ts, "2"),
	}
	out := runDedup(t, DedupOptions{Window: 2}, events...)

	var ids []string
	for _, ev := range out {
		ids = append(ids, ev.(*models.Trade).ID)
	}
	want := []string{"1", "2", "3", "2"}
	if len(ids) != len(want) {
		t.Fatalf("passed ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("passed ids = %v, want %v", ids, want)
		}
	}
}

func TestDedupScopedPerSymbol(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	a := tradeAt("binance", ts, "7")
	b := tradeAt("binance", ts, "7")
	b.Symbol = "ETHUSDT"

	out := runDedup(t, DedupOptions{}, a, b)
	if len(out) != 2 {
		t.Fatalf("same id on different symbols must not collide")
	}
}

func TestNonTradeEventsPassThrough(t *testing.T) {
	ts := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	out := runDedup(t, DedupOptions{},
		&models.Disconnect{Exchange: "binance", LocalTimestamp: ts},
		&models.BookChange{Exchange: "binance", Symbol: "BTCUSDT", LocalTimestamp: ts},
	)
	if len(out) != 2 {
		t.Fatalf("got %d events, want 2", len(out))
	}
}
