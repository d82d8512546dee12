package binance

import (
	"testing"
	"time"

	"tickflow/models"
)

var testLocal = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestTradesMapper(t *testing.T) {
	m := NewTradesMapper(ExchangeSpot)

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1715343000123,"s":"BTCUSDT","t":987654,"p":"62150.10","q":"0.042","T":1715343000120,"m":true}}`)
	if !m.CanHandle(raw) {
		t.Fatalf("expected trade message to be handled")
	}

	events, err := m.Map(raw, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	trade, ok := events[0].(*models.Trade)
	if !ok {
		t.Fatalf("expected trade, got %T", events[0])
	}
	if trade.Symbol != "BTCUSDT" || trade.Exchange != ExchangeSpot {
		t.Fatalf("unexpected identity: %s %s", trade.Symbol, trade.Exchange)
	}
	if trade.ID != "987654" {
		t.Fatalf("unexpected trade id %q", trade.ID)
	}
	if trade.Price != 62150.10 || trade.Amount != 0.042 {
		t.Fatalf("unexpected price/amount: %v / %v", trade.Price, trade.Amount)
	}
	if trade.Side != models.SideSell {
		t.Fatalf("buyer-is-maker trade should map to sell, got %s", trade.Side)
	}
	if got := trade.Timestamp.UnixMilli(); got != 1715343000120 {
		t.Fatalf("unexpected timestamp %d", got)
	}
	if !trade.LocalTimestamp.Equal(testLocal) {
		t.Fatalf("local timestamp not preserved")
	}
}

func TestTradesMapperAggressiveBuy(t *testing.T) {
	m := NewTradesMapper(ExchangeSpot)
	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","t":1,"p":"100","q":"1","T":1715343000120,"m":false}}`)

	events, err := m.Map(raw, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("map failed: %v (%d events)", err, len(events))
	}
	if events[0].(*models.Trade).Side != models.SideBuy {
		t.Fatalf("taker buy should map to buy side")
	}
}

func TestBookMapperBuffersUntilSnapshot(t *testing.T) {
	m := NewBookMapper(ExchangeSpot, BookOptions{})

	delta := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","E":1715343000050,"s":"BTCUSDT","U":95,"u":105,"b":[["62100","0.5"]],"a":[["62200","0.3"]]}}`)
	if !m.CanHandle(delta) {
		t.Fatalf("expected depth delta to be handled")
	}
	events, err := m.Map(delta, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("delta before snapshot should be buffered, got %d events", len(events))
	}

	snapshot := []byte(`{"stream":"btcusdt@depthSnapshot","data":{"lastUpdateId":100,"bids":[["62000","1.0"]],"asks":[["62300","2.0"]]}}`)
	if !m.CanHandle(snapshot) {
		t.Fatalf("expected depth snapshot to be handled")
	}
	events, err = m.Map(snapshot, testLocal)
	if err != nil {
		t.Fatalf("snapshot map failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected snapshot event, got %d", len(events))
	}
	change := events[0].(*models.BookChange)
	if !change.IsSnapshot {
		t.Fatalf("expected snapshot book change")
	}
	// the buffered delta (u=105 > 100) replays into the emitted snapshot
	if !hasLevel(change.Bids, 62100, 0.5) {
		t.Fatalf("buffered delta bid missing from snapshot: %+v", change.Bids)
	}
	if !hasLevel(change.Bids, 62000, 1.0) || !hasLevel(change.Asks, 62300, 2.0) {
		t.Fatalf("snapshot levels missing: %+v / %+v", change.Bids, change.Asks)
	}

	next := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","E":1715343000150,"s":"BTCUSDT","U":106,"u":110,"b":[["62050","0.7"]],"a":[["62300","0"]]}}`)
	events, err = m.Map(next, testLocal)
	if err != nil {
		t.Fatalf("delta map failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected delta event, got %d", len(events))
	}
	change = events[0].(*models.BookChange)
	if change.IsSnapshot {
		t.Fatalf("expected delta book change")
	}
	if !hasLevel(change.Asks, 62300, 0) {
		t.Fatalf("removal level should be forwarded: %+v", change.Asks)
	}
}

func TestBookMapperResetDropsState(t *testing.T) {
	m := NewBookMapper(ExchangeSpot, BookOptions{})

	snapshot := []byte(`{"stream":"btcusdt@depthSnapshot","data":{"lastUpdateId":100,"bids":[["62000","1.0"]],"asks":[["62300","2.0"]]}}`)
	if _, err := m.Map(snapshot, testLocal); err != nil {
		t.Fatalf("snapshot map failed: %v", err)
	}
	m.Reset()

	delta := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT","U":101,"u":102,"b":[["62050","0.7"]],"a":[]}}`)
	events, err := m.Map(delta, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("delta after reset should be buffered again, got %d events", len(events))
	}
}

func TestBookTickerMapper(t *testing.T) {
	m := NewBookTickerMapper(ExchangeSpot)

	raw := []byte(`{"stream":"btcusdt@bookTicker","data":{"u":4001,"s":"BTCUSDT","b":"62100.5","B":"1.2","a":"62101.0","A":"0.8"}}`)
	if !m.CanHandle(raw) {
		t.Fatalf("expected book ticker to be handled")
	}
	events, err := m.Map(raw, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("map failed: %v (%d events)", err, len(events))
	}

	ticker := events[0].(*models.BookTicker)
	if ticker.BidPrice == nil || *ticker.BidPrice != 62100.5 {
		t.Fatalf("unexpected bid price: %v", ticker.BidPrice)
	}
	if ticker.AskAmount == nil || *ticker.AskAmount != 0.8 {
		t.Fatalf("unexpected ask amount: %v", ticker.AskAmount)
	}
	// spot payload has no event time, local receipt time stands in
	if !ticker.Timestamp.Equal(testLocal) {
		t.Fatalf("expected local timestamp fallback, got %v", ticker.Timestamp)
	}
}

func TestDerivativeTickerMapperCoalesces(t *testing.T) {
	m := NewDerivativeTickerMapper(ExchangeFutures)

	mark := []byte(`{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","E":1715343000200,"s":"BTCUSDT","p":"62150.00","i":"62148.50","r":"0.0001","T":1715372800000}}`)
	events, err := m.Map(mark, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("mark price map failed: %v (%d events)", err, len(events))
	}
	ticker := events[0].(*models.DerivativeTicker)
	if ticker.MarkPrice == nil || *ticker.MarkPrice != 62150.00 {
		t.Fatalf("unexpected mark price: %v", ticker.MarkPrice)
	}
	if ticker.FundingRate == nil || *ticker.FundingRate != 0.0001 {
		t.Fatalf("unexpected funding rate: %v", ticker.FundingRate)
	}
	if ticker.LastPrice != nil {
		t.Fatalf("last price should be unset before ticker channel reports")
	}

	// identical payload changes nothing observable
	events, err = m.Map(mark, testLocal)
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unchanged state should not emit, got %d events", len(events))
	}

	oi := []byte(`{"stream":"btcusdt@openInterest","data":{"symbol":"BTCUSDT","openInterest":"10500.5","time":1715343000300}}`)
	events, err = m.Map(oi, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("open interest map failed: %v (%d events)", err, len(events))
	}
	ticker = events[0].(*models.DerivativeTicker)
	if ticker.OpenInterest == nil || *ticker.OpenInterest != 10500.5 {
		t.Fatalf("unexpected open interest: %v", ticker.OpenInterest)
	}
	// earlier fields survive across channels
	if ticker.MarkPrice == nil || *ticker.MarkPrice != 62150.00 {
		t.Fatalf("mark price lost while coalescing: %v", ticker.MarkPrice)
	}
}

func TestLiquidationsMapper(t *testing.T) {
	m := NewLiquidationsMapper(ExchangeFutures)

	raw := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","E":1715343000400,"o":{"s":"BTCUSDT","S":"SELL","q":"0.014","p":"62100.00","ap":"62095.50","T":1715343000395}}}`)
	if !m.CanHandle(raw) {
		t.Fatalf("expected force order to be handled")
	}
	events, err := m.Map(raw, testLocal)
	if err != nil || len(events) != 1 {
		t.Fatalf("map failed: %v (%d events)", err, len(events))
	}

	liq := events[0].(*models.Liquidation)
	if liq.Symbol != "BTCUSDT" || liq.Exchange != ExchangeFutures {
		t.Fatalf("unexpected identity: %s %s", liq.Symbol, liq.Exchange)
	}
	if liq.Price != 62095.50 {
		t.Fatalf("average price should win over order price, got %v", liq.Price)
	}
	if liq.Side != models.SideSell {
		t.Fatalf("unexpected side %s", liq.Side)
	}
	if got := liq.Timestamp.UnixMilli(); got != 1715343000395 {
		t.Fatalf("unexpected timestamp %d", got)
	}
}

func TestDispatcherRegistration(t *testing.T) {
	spot := NewDispatcher(ExchangeSpot, BookOptions{})
	futures := NewDispatcher(ExchangeFutures, BookOptions{})

	force := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"100","ap":"100","T":1}}}`)

	events, err := spot.Dispatch(force, testLocal)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("spot dispatcher should drop force orders, got %d events", len(events))
	}

	events, err = futures.Dispatch(force, testLocal)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("futures dispatcher should map force orders, got %d events", len(events))
	}
}

func TestOverlapPredicates(t *testing.T) {
	spot := overlapFor(ExchangeSpot)
	futures := overlapFor(ExchangeFutures)

	// spot: first delta must bracket lastUpdateId+1
	if !spot(100, 95, 105) {
		t.Fatalf("spot overlap should accept bracketing delta")
	}
	if spot(100, 102, 110) {
		t.Fatalf("spot overlap should reject gapped delta")
	}
	if !spot(100, 101, 101) {
		t.Fatalf("spot overlap should accept exact successor")
	}

	// futures: first delta must bracket lastUpdateId itself
	if !futures(100, 99, 101) {
		t.Fatalf("futures overlap should accept bracketing delta")
	}
	if futures(100, 101, 110) {
		t.Fatalf("futures overlap should reject delta past the snapshot")
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
