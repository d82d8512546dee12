package mapper

import (
	"testing"
	"time"
)

func TestPendingTickerEmitsOnlyOnChange(t *testing.T) {
	acc := NewTickerAccumulator()
	local := time.Unix(10, 0)

	p := acc.Get("BTC-USDT-SWAP", "okx")
	if p.HasChanged() {
		t.Fatalf("fresh ticker reports change")
	}

	p.UpdateMarkPrice(50000)
	if !p.HasChanged() {
		t.Fatalf("unset->set transition must mark changed")
	}

	snap := p.Snapshot(local)
	if p.HasChanged() {
		t.Fatalf("snapshot must clear dirty flag")
	}
	if snap.MarkPrice == nil || *snap.MarkPrice != 50000 {
		t.Fatalf("mark price = %v", snap.MarkPrice)
	}
	if snap.Exchange != "okx" || snap.Symbol != "BTC-USDT-SWAP" {
		t.Fatalf("identity fields = %s %s", snap.Exchange, snap.Symbol)
	}

	// same value again: no change, no back-to-back identical snapshots
	p.UpdateMarkPrice(50000)
	if p.HasChanged() {
		t.Fatalf("repeated value must not mark changed")
	}

	p.UpdateMarkPrice(50001)
	if !p.HasChanged() {
		t.Fatalf("new value must mark changed")
	}
}

func TestPendingTickerCoalescesScatteredFields(t *testing.T) {
	acc := NewTickerAccumulator()
	p := acc.Get("BTCUSDT", "binance-futures")

	p.UpdateFundingRate(0.0001)
	p.UpdateFundingTimestamp(time.Unix(1000, 0))
	p.Snapshot(time.Unix(1, 0))

	p.UpdateOpenInterest(1234.5)
	p.UpdateIndexPrice(49999)
	if !p.HasChanged() {
		t.Fatalf("expected change after new fields")
	}
	snap := p.Snapshot(time.Unix(2, 0))

	// fields from earlier messages survive in later snapshots
	if snap.FundingRate == nil || *snap.FundingRate != 0.0001 {
		t.Errorf("funding rate = %v", snap.FundingRate)
	}
	if snap.OpenInterest == nil || *snap.OpenInterest != 1234.5 {
		t.Errorf("open interest = %v", snap.OpenInterest)
	}
	if snap.IndexPrice == nil || *snap.IndexPrice != 49999 {
		t.Errorf("index price = %v", snap.IndexPrice)
	}
	if snap.LocalTimestamp != time.Unix(2, 0) {
		t.Errorf("localTimestamp = %v", snap.LocalTimestamp)
	}
}

func TestPendingTickerTimestampDoesNotDirty(t *testing.T) {
	acc := NewTickerAccumulator()
	p := acc.Get("BTCUSDT", "binance-futures")
	p.UpdateTimestamp(time.Unix(42, 0))
	if p.HasChanged() {
		t.Fatalf("timestamp alone must not mark changed")
	}
	p.UpdateLastPrice(100)
	snap := p.Snapshot(time.Unix(43, 0))
	if !snap.Timestamp.Equal(time.Unix(42, 0)) {
		t.Errorf("timestamp = %v, want venue time", snap.Timestamp)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	acc := NewTickerAccumulator()
	p := acc.Get("BTCUSDT", "binance-futures")
	p.UpdateMarkPrice(100)
	snap := p.Snapshot(time.Unix(1, 0))

	p.UpdateMarkPrice(200)
	if *snap.MarkPrice != 100 {
		t.Fatalf("snapshot mutated by later update: %v", *snap.MarkPrice)
	}
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewTickerAccumulator()
	p := acc.Get("BTCUSDT", "binance-futures")
	p.UpdateMarkPrice(100)
	acc.Reset()

	if acc.Get("BTCUSDT", "binance-futures").HasChanged() {
		t.Fatalf("state survived reset")
	}
}
