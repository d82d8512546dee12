// Package writer delivers canonical event streams to external sinks.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// KafkaWriter publishes every canonical event as one JSON message, keyed by
// exchange:symbol so per-instrument ordering survives partitioning.
type KafkaWriter struct {
	config  appconfig.KafkaConfig
	events  <-chan models.Event
	writer  *kafka.Writer
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Entry
}

func NewKafkaWriter(cfg appconfig.KafkaConfig, events <-chan models.Event) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kw := &KafkaWriter{
		config: cfg,
		events: events,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger().WithComponent("kafka_writer"),
	}
	kw.log.WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.wg.Add(1)
	go kw.publish()
	kw.log.Info("kafka writer started")
	return nil
}

func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.wg.Wait()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithError(err).Warn("kafka writer close failed")
	}
	kw.log.Info("kafka writer stopped")
}

func (kw *KafkaWriter) publish() {
	defer kw.wg.Done()

	for {
		select {
		case <-kw.ctx.Done():
			return
		case ev, ok := <-kw.events:
			if !ok {
				return
			}
			value, err := json.Marshal(ev)
			if err != nil {
				kw.log.WithError(err).Error("event marshal failed")
				continue
			}
			msg := kafka.Message{
				Key:   []byte(eventKey(ev)),
				Value: value,
			}
			if err := kw.writer.WriteMessages(kw.ctx, msg); err != nil {
				if kw.ctx.Err() != nil {
					return
				}
				kw.log.WithError(err).Error("kafka publish failed")
			}
		}
	}
}

// eventKey builds the partition key for an event. Events without an
// instrument (disconnects) key on exchange alone.
func eventKey(ev models.Event) string {
	switch e := ev.(type) {
	case *models.Trade:
		return e.Exchange + ":" + e.Symbol
	case *models.BookChange:
		return e.Exchange + ":" + e.Symbol
	case *models.BookTicker:
		return e.Exchange + ":" + e.Symbol
	case *models.DerivativeTicker:
		return e.Exchange + ":" + e.Symbol
	case *models.OptionSummary:
		return e.Exchange + ":" + e.Symbol
	case *models.Liquidation:
		return e.Exchange + ":" + e.Symbol
	case *models.BookSnapshot:
		return e.Exchange + ":" + e.Symbol
	case *models.TradeBar:
		return e.Exchange + ":" + e.Symbol
	case *models.Disconnect:
		return e.Exchange
	default:
		return ev.Kind()
	}
}
