package writer

import (
	"testing"
	"time"

	appconfig "tickflow/config"
	"tickflow/models"
)

func kafkaConfigWith(brokers []string) appconfig.KafkaConfig {
	return appconfig.KafkaConfig{Enabled: true, Brokers: brokers, Topic: "tickflow.events"}
}

func TestEventKey(t *testing.T) {
	trade := &models.Trade{Symbol: "BTCUSDT", Exchange: "binance"}
	if got := eventKey(trade); got != "binance:BTCUSDT" {
		t.Fatalf("unexpected trade key %q", got)
	}

	disc := &models.Disconnect{Exchange: "okx"}
	if got := eventKey(disc); got != "okx" {
		t.Fatalf("unexpected disconnect key %q", got)
	}

	bar := &models.TradeBar{Symbol: "XBTUSDTM", Exchange: "kucoin", Type: "trade_bar_10000ms"}
	if got := eventKey(bar); got != "kucoin:XBTUSDTM" {
		t.Fatalf("unexpected bar key %q", got)
	}
}

func TestEncodeParquetRoundsRecords(t *testing.T) {
	records := []TradeRecord{
		{
			Exchange:       "binance",
			Symbol:         "BTCUSDT",
			TradeID:        "1",
			Price:          62150.5,
			Amount:         0.25,
			Side:           models.SideBuy,
			Timestamp:      time.Now().UnixMilli(),
			LocalTimestamp: time.Now().UnixMilli(),
		},
		{
			Exchange:       "binance",
			Symbol:         "BTCUSDT",
			TradeID:        "2",
			Price:          62151.0,
			Amount:         1.5,
			Side:           models.SideSell,
			Timestamp:      time.Now().UnixMilli(),
			LocalTimestamp: time.Now().UnixMilli(),
		},
	}

	data, err := encodeParquet(records)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty parquet output")
	}
	// parquet files end with the PAR1 magic
	if string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("output does not look like a parquet file")
	}
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	events := make(chan models.Event)
	if _, err := NewKafkaWriter(kafkaConfigWith(nil), events); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaWriter(kafkaConfigWith([]string{"localhost:9092"}), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
