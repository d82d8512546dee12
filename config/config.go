package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tickflow TickflowConfig `yaml:"tickflow"`
	Logging  LoggingConfig  `yaml:"logging"`
	Channels ChannelsConfig `yaml:"channels"`
	Sources  SourcesConfig  `yaml:"sources"`
	Book     BookConfig     `yaml:"book"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Compute  ComputeConfig  `yaml:"compute"`
	Storage  StorageConfig  `yaml:"storage"`
}

type TickflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	EventBuffer int `yaml:"event_buffer"`
}

type SourcesConfig struct {
	Binance        ExchangeSourceConfig `yaml:"binance"`
	BinanceFutures ExchangeSourceConfig `yaml:"binance_futures"`
	Bybit          ExchangeSourceConfig `yaml:"bybit"`
	Okx            ExchangeSourceConfig `yaml:"okx"`
	Kucoin         ExchangeSourceConfig `yaml:"kucoin"`
	Replay         ReplayConfig         `yaml:"replay"`
}

type ExchangeSourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Symbols        []string      `yaml:"symbols"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ReplayConfig struct {
	Enabled bool     `yaml:"enabled"`
	Files   []string `yaml:"files"`
}

type BookConfig struct {
	BufferSize          int  `yaml:"buffer_size"`
	IgnoreOverlapErrors bool `yaml:"ignore_overlap_errors"`
}

type DedupConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Window             int           `yaml:"window"`
	SkipStaleOlderThan time.Duration `yaml:"skip_stale_older_than"`
}

type ComputeConfig struct {
	BookSnapshots []BookSnapshotConfig `yaml:"book_snapshots"`
	TradeBars     []TradeBarConfig     `yaml:"trade_bars"`
}

type BookSnapshotConfig struct {
	Depth    int           `yaml:"depth"`
	Interval time.Duration `yaml:"interval"`
	Name     string        `yaml:"name"`
}

type TradeBarConfig struct {
	Kind     string  `yaml:"kind"`
	Interval float64 `yaml:"interval"`
	Name     string  `yaml:"name"`
}

type StorageConfig struct {
	Kafka   KafkaConfig   `yaml:"kafka"`
	Parquet ParquetConfig `yaml:"parquet"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ParquetConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Directory     string        `yaml:"directory"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoadConfig reads the YAML configuration at path, expanding ${VAR}
// references from the environment before unmarshalling.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnv(string(data))

	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Tickflow: TickflowConfig{Name: "tickflow"},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Channels: ChannelsConfig{RawBuffer: 4096, EventBuffer: 1024},
		Book:     BookConfig{BufferSize: 2000},
		Dedup:    DedupConfig{Window: 500},
	}
}

func (c *Config) validate() error {
	if c.Channels.RawBuffer < 1 || c.Channels.EventBuffer < 1 {
		return fmt.Errorf("channel buffer sizes must be positive")
	}
	if c.Book.BufferSize < 1 {
		return fmt.Errorf("book buffer size must be positive")
	}
	for _, tb := range c.Compute.TradeBars {
		switch tb.Kind {
		case "time", "tick", "volume":
		default:
			return fmt.Errorf("unknown trade bar kind '%s'", tb.Kind)
		}
		if tb.Interval <= 0 {
			return fmt.Errorf("trade bar interval must be positive")
		}
	}
	for _, bs := range c.Compute.BookSnapshots {
		if bs.Depth < 1 {
			return fmt.Errorf("book snapshot depth must be positive")
		}
		if bs.Interval < 0 {
			return fmt.Errorf("book snapshot interval must not be negative")
		}
	}
	if c.Storage.Kafka.Enabled && len(c.Storage.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	return nil
}
