package bybit

import (
	"testing"
	"time"

	"tickflow/models"
)

var testLocal = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestTradesMapperMultipleExecutions(t *testing.T) {
	m := NewTradesMapper()

	raw := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1715343000123,"data":[` +
		`{"T":1715343000120,"s":"BTCUSDT","S":"Buy","v":"0.005","p":"62150.10","i":"a1b2c3"},` +
		`{"T":1715343000121,"s":"BTCUSDT","S":"Sell","v":"0.020","p":"62149.90","i":"d4e5f6"}]}`)
	if !m.CanHandle(raw) {
		t.Fatalf("expected publicTrade message to be handled")
	}

	events, err := m.Map(raw, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(events))
	}

	first := events[0].(*models.Trade)
	if first.Side != models.SideBuy || first.Price != 62150.10 || first.ID != "a1b2c3" {
		t.Fatalf("unexpected first trade: %+v", first)
	}
	second := events[1].(*models.Trade)
	if second.Side != models.SideSell || second.Amount != 0.020 {
		t.Fatalf("unexpected second trade: %+v", second)
	}
	if first.Exchange != Exchange {
		t.Fatalf("unexpected exchange %q", first.Exchange)
	}
}

func TestBookMapperSnapshotThenDelta(t *testing.T) {
	m := NewBookMapper(BookOptions{})

	snapshot := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1715343000100,"data":{"s":"BTCUSDT","b":[["62000","1.0"],["61990","0.5"]],"a":[["62010","2.0"]],"u":18521288,"seq":7961638724}}`)
	if !m.CanHandle(snapshot) {
		t.Fatalf("expected orderbook message to be handled")
	}
	events, err := m.Map(snapshot, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("snapshot map failed: %v (%d events)", err, len(events))
	}
	change := events[0].(*models.BookChange)
	if !change.IsSnapshot || len(change.Bids) != 2 || len(change.Asks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", change)
	}
	if change.Bids[0].Price != 62000 {
		t.Fatalf("bids should be sorted best first: %+v", change.Bids)
	}

	delta := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1715343000200,"data":{"s":"BTCUSDT","b":[["61990","0"]],"a":[["62005","0.3"]],"u":18521289,"seq":7961638730}}`)
	events, err = m.Map(delta, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("delta map failed: %v (%d events)", err, len(events))
	}
	change = events[0].(*models.BookChange)
	if change.IsSnapshot {
		t.Fatalf("expected delta book change")
	}
	if len(change.Bids) != 1 || change.Bids[0].Amount != 0 {
		t.Fatalf("removal level should be forwarded: %+v", change.Bids)
	}
}

func TestBookMapperDeltaBeforeSnapshotBuffered(t *testing.T) {
	m := NewBookMapper(BookOptions{})

	delta := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1715343000050,"data":{"s":"BTCUSDT","b":[["62001","0.4"]],"a":[],"u":18521290}}`)
	events, err := m.Map(delta, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("delta before snapshot should be buffered, got %d events", len(events))
	}

	snapshot := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1715343000100,"data":{"s":"BTCUSDT","b":[["62000","1.0"]],"a":[["62010","2.0"]],"u":18521288}}`)
	events, err = m.Map(snapshot, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("snapshot map failed: %v (%d events)", err, len(events))
	}
	change := events[0].(*models.BookChange)
	// the buffered delta (u past the snapshot) replays into the snapshot
	if !hasLevel(change.Bids, 62001, 0.4) {
		t.Fatalf("buffered delta missing from snapshot: %+v", change.Bids)
	}
}

func TestBookMapperStaleDeltaDropped(t *testing.T) {
	m := NewBookMapper(BookOptions{})

	snapshot := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1,"data":{"s":"BTCUSDT","b":[["62000","1.0"]],"a":[],"u":100}}`)
	if _, err := m.Map(snapshot, testLocal); err != nil {
		t.Fatalf("snapshot map failed: %v", err)
	}

	stale := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":2,"data":{"s":"BTCUSDT","b":[["61000","9"]],"a":[],"u":100}}`)
	events, err := m.Map(stale, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("stale delta should be dropped, got %d events", len(events))
	}
}

func TestTickersMapperPartialCoalescing(t *testing.T) {
	m := NewTickersMapper()

	snapshot := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1715343000100,"data":{"symbol":"BTCUSDT","lastPrice":"62150.00","indexPrice":"62148.50","markPrice":"62149.80","openInterest":"10500.5","fundingRate":"0.0001","nextFundingTime":"1715372800000"}}`)
	if !m.CanHandle(snapshot) {
		t.Fatalf("expected tickers message to be handled")
	}
	events, err := m.Map(snapshot, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("snapshot map failed: %v (%d events)", err, len(events))
	}
	ticker := events[0].(*models.DerivativeTicker)
	if ticker.LastPrice == nil || *ticker.LastPrice != 62150.00 {
		t.Fatalf("unexpected last price: %v", ticker.LastPrice)
	}
	if ticker.FundingTimestamp == nil || ticker.FundingTimestamp.UnixMilli() != 1715372800000 {
		t.Fatalf("unexpected funding timestamp: %v", ticker.FundingTimestamp)
	}

	// partial delta updates one field, the rest must survive
	delta := []byte(`{"topic":"tickers.BTCUSDT","type":"delta","ts":1715343000200,"data":{"symbol":"BTCUSDT","markPrice":"62151.00"}}`)
	events, err = m.Map(delta, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("delta map failed: %v (%d events)", err, len(events))
	}
	ticker = events[0].(*models.DerivativeTicker)
	if ticker.MarkPrice == nil || *ticker.MarkPrice != 62151.00 {
		t.Fatalf("mark price not updated: %v", ticker.MarkPrice)
	}
	if ticker.LastPrice == nil || *ticker.LastPrice != 62150.00 {
		t.Fatalf("last price lost across partial delta: %v", ticker.LastPrice)
	}

	// delta that repeats current state changes nothing observable
	events, err = m.Map(delta, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unchanged delta should not emit, got %d events", len(events))
	}
}

func TestLiquidationsMapper(t *testing.T) {
	m := NewLiquidationsMapper()

	raw := []byte(`{"topic":"liquidation.BTCUSDT","type":"snapshot","ts":1715343000400,"data":{"updatedTime":1715343000395,"symbol":"BTCUSDT","side":"Sell","size":"0.003","price":"62095.50"}}`)
	if !m.CanHandle(raw) {
		t.Fatalf("expected liquidation message to be handled")
	}
	events, err := m.Map(raw, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("map failed: %v (%d events)", err, len(events))
	}

	liq := events[0].(*models.Liquidation)
	if liq.Symbol != "BTCUSDT" || liq.Exchange != Exchange {
		t.Fatalf("unexpected identity: %s %s", liq.Symbol, liq.Exchange)
	}
	if liq.Price != 62095.50 || liq.Amount != 0.003 || liq.Side != models.SideSell {
		t.Fatalf("unexpected liquidation: %+v", liq)
	}
	if got := liq.Timestamp.UnixMilli(); got != 1715343000395 {
		t.Fatalf("unexpected timestamp %d", got)
	}
}

func TestDispatcherRouting(t *testing.T) {
	d := NewDispatcher(BookOptions{})

	if d.Exchange() != Exchange {
		t.Fatalf("unexpected exchange %q", d.Exchange())
	}

	unknown := []byte(`{"op":"subscribe","args":["publicTrade.BTCUSDT"]}`)
	events, err := d.Dispatch(unknown, testLocal)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("control message should be dropped, got %d events", len(events))
	}
}

func hasLevel(levels []models.PriceLevel, price, amount float64) bool {
	for _, l := range levels {
		if l.Price == price && l.Amount == amount {
			return true
		}
	}
	return false
}
