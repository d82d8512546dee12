package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tickflow/config"
	"tickflow/logger"
	"tickflow/mapper"
	"tickflow/mapper/binance"
	"tickflow/mapper/bybit"
	"tickflow/mapper/kucoin"
	"tickflow/mapper/okx"
	"tickflow/models"
	"tickflow/reader"
	"tickflow/stream"
	"tickflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tickflow.Name,
		"version": cfg.Tickflow.Version,
	}).Info("starting tickflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bookBuffer := cfg.Book.BufferSize
	ignoreOverlap := cfg.Book.IgnoreOverlapErrors

	type liveSource struct {
		exchange   string
		dispatcher *mapper.Dispatcher
		cfg        config.ExchangeSourceConfig
	}

	var live []liveSource
	if cfg.Sources.Binance.Enabled {
		live = append(live, liveSource{
			exchange:   binance.ExchangeSpot,
			dispatcher: binance.NewDispatcher(binance.ExchangeSpot, binance.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap}),
			cfg:        cfg.Sources.Binance,
		})
	}
	if cfg.Sources.BinanceFutures.Enabled {
		live = append(live, liveSource{
			exchange:   binance.ExchangeFutures,
			dispatcher: binance.NewDispatcher(binance.ExchangeFutures, binance.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap}),
			cfg:        cfg.Sources.BinanceFutures,
		})
	}
	if cfg.Sources.Bybit.Enabled {
		live = append(live, liveSource{
			exchange:   bybit.Exchange,
			dispatcher: bybit.NewDispatcher(bybit.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap}),
			cfg:        cfg.Sources.Bybit,
		})
	}
	if cfg.Sources.Okx.Enabled {
		live = append(live, liveSource{
			exchange:   okx.Exchange,
			dispatcher: okx.NewDispatcher(okx.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap}),
			cfg:        cfg.Sources.Okx,
		})
	}
	if cfg.Sources.Kucoin.Enabled {
		live = append(live, liveSource{
			exchange:   kucoin.Exchange,
			dispatcher: kucoin.NewDispatcher(kucoin.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap}),
			cfg:        cfg.Sources.Kucoin,
		})
	}

	var eventSources []<-chan models.Event
	var stoppers []func()

	for _, src := range live {
		subs, err := buildSubscriptions(src.exchange, src.dispatcher.Filters(src.cfg.Symbols))
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": src.exchange}).Error("failed to build subscriptions")
			os.Exit(1)
		}

		ws := reader.NewWSReader(src.exchange, src.cfg, subs, cfg.Channels.RawBuffer)
		if err := ws.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start ws reader")
			os.Exit(1)
		}
		stoppers = append(stoppers, ws.Stop)

		raw := ws.Messages()
		switch src.exchange {
		case binance.ExchangeSpot, binance.ExchangeFutures:
			// depth snapshots arrive over REST and merge into the same
			// raw stream the ws reader feeds
			injected := make(chan models.RawMessage, cfg.Channels.RawBuffer)
			fetcher := reader.NewBinanceSnapshotFetcher(
				src.exchange == binance.ExchangeFutures,
				reader.SnapshotOptions{Symbols: src.cfg.Symbols},
				injected,
			)
			if err := fetcher.Start(ctx); err != nil {
				log.WithError(err).Error("failed to start snapshot fetcher")
				os.Exit(1)
			}
			stoppers = append(stoppers, fetcher.Stop)
			raw = mergeRaw(ctx, raw, injected)
		case kucoin.Exchange:
			injected := make(chan models.RawMessage, cfg.Channels.RawBuffer)
			fetcher := reader.NewKucoinSnapshotFetcher(
				reader.KucoinSnapshotOptions{Symbols: src.cfg.Symbols},
				injected,
			)
			if err := fetcher.Start(ctx); err != nil {
				log.WithError(err).Error("failed to start snapshot fetcher")
				os.Exit(1)
			}
			stoppers = append(stoppers, fetcher.Stop)
			raw = mergeRaw(ctx, raw, injected)
		}

		eventSources = append(eventSources, reader.Normalize(ctx, src.dispatcher, raw, cfg.Channels.EventBuffer))
	}

	if cfg.Sources.Replay.Enabled {
		// replayed captures are pre-recorded binance-futures sessions
		d := binance.NewDispatcher(binance.ExchangeFutures, binance.BookOptions{BufferSize: bookBuffer, IgnoreOverlapErrors: ignoreOverlap})
		raw := reader.NewFileSource(cfg.Sources.Replay.Files, cfg.Channels.RawBuffer).Messages(ctx)
		eventSources = append(eventSources, reader.Normalize(ctx, d, raw, cfg.Channels.EventBuffer))
	}

	if len(eventSources) == 0 {
		log.Error("no sources enabled")
		os.Exit(1)
	}

	merged := stream.Combine(ctx, eventSources...)

	if cfg.Dedup.Enabled {
		merged = stream.UniqueTradesOnly(ctx, merged, stream.DedupOptions{
			Window:             cfg.Dedup.Window,
			SkipStaleOlderThan: cfg.Dedup.SkipStaleOlderThan,
		})
	}

	var computables []stream.Computable
	for _, bs := range cfg.Compute.BookSnapshots {
		computables = append(computables, stream.NewBookSnapshots(stream.BookSnapshotOptions{
			Depth:    bs.Depth,
			Interval: bs.Interval,
			Name:     bs.Name,
		}))
	}
	for _, tb := range cfg.Compute.TradeBars {
		computables = append(computables, stream.NewTradeBars(stream.TradeBarOptions{
			Kind:     tb.Kind,
			Interval: tb.Interval,
			Name:     tb.Name,
		}))
	}
	if len(computables) > 0 {
		merged = stream.Compute(ctx, merged, computables...)
	}

	var sinks []chan models.Event
	if cfg.Storage.Kafka.Enabled {
		ch := make(chan models.Event, cfg.Channels.EventBuffer)
		kw, err := writer.NewKafkaWriter(cfg.Storage.Kafka, ch)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		if err := kw.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start kafka writer")
			os.Exit(1)
		}
		sinks = append(sinks, ch)
		stoppers = append(stoppers, kw.Stop)
	}
	if cfg.Storage.Parquet.Enabled {
		ch := make(chan models.Event, cfg.Channels.EventBuffer)
		pw, err := writer.NewParquetWriter(ctx, cfg.Storage.Parquet, ch)
		if err != nil {
			log.WithError(err).Error("failed to create parquet writer")
			os.Exit(1)
		}
		if err := pw.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start parquet writer")
			os.Exit(1)
		}
		sinks = append(sinks, ch)
		stoppers = append(stoppers, pw.Stop)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			for _, ch := range sinks {
				close(ch)
			}
		}()
		count := 0
		for ev := range merged {
			count++
			if len(sinks) == 0 {
				// no sink configured, stream to stdout
				if data, err := json.Marshal(ev); err == nil {
					fmt.Println(string(data))
				}
				continue
			}
			for _, ch := range sinks {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
		log.LogMetric("pipeline", "events_total", count, nil)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	case <-done:
		log.Info("all sources exhausted")
		cancel()
	}

	<-done
	for _, stop := range stoppers {
		stop()
	}
	log.Info("tickflow stopped")
}

// mergeRaw interleaves websocket traffic with injected REST records.
func mergeRaw(ctx context.Context, a, b <-chan models.RawMessage) <-chan models.RawMessage {
	out := make(chan models.RawMessage, cap(a))
	go func() {
		defer close(out)
		for a != nil || b != nil {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-a:
				if !ok {
					a = nil
					continue
				}
				out <- msg
			case msg, ok := <-b:
				if !ok {
					b = nil
					continue
				}
				out <- msg
			}
		}
	}()
	return out
}

// buildSubscriptions renders an exchange's merged filters into the wire
// subscription frames its websocket API expects.
func buildSubscriptions(exchange string, filters []models.Filter) ([][]byte, error) {
	switch exchange {
	case binance.ExchangeSpot, binance.ExchangeFutures:
		var params []string
		for _, f := range filters {
			if f.Channel == "depthSnapshot" {
				continue // injected over REST, not subscribable
			}
			for _, s := range f.Symbols {
				params = append(params, s+"@"+f.Channel)
			}
		}
		frame, err := json.Marshal(map[string]any{
			"method": "SUBSCRIBE",
			"params": params,
			"id":     1,
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil

	case bybit.Exchange:
		var args []string
		for _, f := range filters {
			for _, s := range f.Symbols {
				args = append(args, f.Channel+"."+s)
			}
		}
		frame, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil

	case okx.Exchange:
		var args []map[string]string
		for _, f := range filters {
			for _, s := range f.Symbols {
				args = append(args, map[string]string{"channel": f.Channel, "instId": s})
			}
		}
		frame, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil

	case kucoin.Exchange:
		var frames [][]byte
		id := 1
		for _, f := range filters {
			if f.Channel == kucoin.SnapshotTopic {
				continue
			}
			for _, s := range f.Symbols {
				frame, err := json.Marshal(map[string]any{
					"id":       id,
					"type":     "subscribe",
					"topic":    f.Channel + ":" + s,
					"response": true,
				})
				if err != nil {
					return nil, err
				}
				frames = append(frames, frame)
				id++
			}
		}
		return frames, nil
	}
	return nil, fmt.Errorf("unknown exchange %s", exchange)
}
