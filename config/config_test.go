package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
tickflow:
  name: tickflow
  version: 1.0.0
logging:
  level: debug
  format: text
sources:
  binance:
    enabled: true
    symbols: [BTCUSDT, ETHUSDT]
    stale_threshold: 30s
book:
  buffer_size: 1000
  ignore_overlap_errors: true
compute:
  trade_bars:
    - kind: time
      interval: 60000
storage:
  kafka:
    enabled: true
    brokers: [localhost:9092]
    topic: canonical-events
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s, want debug", cfg.Logging.Level)
	}
	if !cfg.Sources.Binance.Enabled || len(cfg.Sources.Binance.Symbols) != 2 {
		t.Errorf("binance source not parsed: %+v", cfg.Sources.Binance)
	}
	if cfg.Sources.Binance.StaleThreshold != 30*time.Second {
		t.Errorf("stale threshold = %v, want 30s", cfg.Sources.Binance.StaleThreshold)
	}
	if cfg.Book.BufferSize != 1000 || !cfg.Book.IgnoreOverlapErrors {
		t.Errorf("book config not parsed: %+v", cfg.Book)
	}
	// defaults survive partial config
	if cfg.Channels.RawBuffer != 4096 {
		t.Errorf("raw buffer default = %d, want 4096", cfg.Channels.RawBuffer)
	}
	if cfg.Dedup.Window != 500 {
		t.Errorf("dedup window default = %d, want 500", cfg.Dedup.Window)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_KAFKA_TOPIC", "events-prod")
	path := writeConfig(t, `
storage:
  kafka:
    enabled: true
    brokers: [localhost:9092]
    topic: ${TEST_KAFKA_TOPIC}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Kafka.Topic != "events-prod" {
		t.Errorf("topic = %s, want events-prod", cfg.Storage.Kafka.Topic)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad bar kind", "compute:\n  trade_bars:\n    - kind: candles\n      interval: 60000\n"},
		{"zero bar interval", "compute:\n  trade_bars:\n    - kind: tick\n      interval: 0\n"},
		{"zero snapshot depth", "compute:\n  book_snapshots:\n    - depth: 0\n"},
		{"kafka without brokers", "storage:\n  kafka:\n    enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := LoadConfig(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
