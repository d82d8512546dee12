package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickflow/logger"
	"tickflow/mapper/kucoin"
	"tickflow/models"
)

const defaultKucoinSnapshotURL = "https://api-futures.kucoin.com/api/v1/level2/snapshot"

// KucoinSnapshotOptions configures the level2 REST snapshot poller.
type KucoinSnapshotOptions struct {
	URL               string
	Symbols           []string
	Interval          time.Duration
	RequestsPerSecond float64
}

// KucoinSnapshotFetcher polls level2 depth snapshots over REST and injects
// them into the raw stream under the synthetic level2Snapshot topic.
type KucoinSnapshotFetcher struct {
	opts    KucoinSnapshotOptions
	client  *http.Client
	limiter *rate.Limiter
	out     chan<- models.RawMessage
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Entry
}

func NewKucoinSnapshotFetcher(opts KucoinSnapshotOptions, out chan<- models.RawMessage) *KucoinSnapshotFetcher {
	if opts.URL == "" {
		opts.URL = defaultKucoinSnapshotURL
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSnapshotInterval
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	return &KucoinSnapshotFetcher{
		opts:    opts,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		out:     out,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger().WithComponent("kucoin_snapshot_fetcher"),
	}
}

func (f *KucoinSnapshotFetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("snapshot fetcher already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	f.log.WithFields(logger.Fields{
		"symbols":  f.opts.Symbols,
		"interval": f.opts.Interval,
	}).Info("starting kucoin snapshot fetcher")

	for _, symbol := range f.opts.Symbols {
		f.wg.Add(1)
		go f.poll(symbol)
	}
	return nil
}

func (f *KucoinSnapshotFetcher) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.wg.Wait()
	f.log.Info("kucoin snapshot fetcher stopped")
}

func (f *KucoinSnapshotFetcher) poll(symbol string) {
	defer f.wg.Done()

	log := f.log.WithFields(logger.Fields{"symbol": symbol})
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	for {
		if err := f.fetchOnce(symbol); err != nil {
			if f.ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("level2 snapshot fetch failed")
		}
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *KucoinSnapshotFetcher) fetchOnce(symbol string) error {
	if err := f.limiter.Wait(f.ctx); err != nil {
		return err
	}

	reqURL, err := url.Parse(f.opts.URL)
	if err != nil {
		return fmt.Errorf("invalid snapshot URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("symbol", symbol)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}
	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch orderbook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot endpoint returned %d", res.StatusCode)
	}

	var resp struct {
		Code string          `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if resp.Code != "200000" {
		return fmt.Errorf("snapshot endpoint code %s", resp.Code)
	}

	envelope := struct {
		Type    string          `json:"type"`
		Topic   string          `json:"topic"`
		Subject string          `json:"subject"`
		Data    json.RawMessage `json:"data"`
	}{
		Type:    "message",
		Topic:   kucoin.SnapshotTopic + ":" + symbol,
		Subject: "level2Snapshot",
		Data:    resp.Data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	select {
	case f.out <- models.RawMessage{LocalTimestamp: time.Now().UTC(), Payload: payload}:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}
