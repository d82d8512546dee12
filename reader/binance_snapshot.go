package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"tickflow/logger"
	"tickflow/models"
)

const (
	defaultSnapshotInterval = time.Minute
	defaultSnapshotDepth    = 1000
)

// SnapshotOptions configures the REST depth poller.
type SnapshotOptions struct {
	Symbols  []string
	Interval time.Duration
	Depth    int
	// RequestsPerSecond caps the REST call rate across all symbols.
	RequestsPerSecond float64
}

type depthResult struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type depthFetcher interface {
	fetch(ctx context.Context, symbol string, limit int) (depthResult, error)
}

type spotFetcher struct{ client *binance.Client }

func (f spotFetcher) fetch(ctx context.Context, symbol string, limit int) (depthResult, error) {
	res, err := f.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return depthResult{}, err
	}
	out := depthResult{LastUpdateID: res.LastUpdateID}
	for _, b := range res.Bids {
		out.Bids = append(out.Bids, [2]string{b.Price, b.Quantity})
	}
	for _, a := range res.Asks {
		out.Asks = append(out.Asks, [2]string{a.Price, a.Quantity})
	}
	return out, nil
}

type futuresFetcher struct{ client *futures.Client }

func (f futuresFetcher) fetch(ctx context.Context, symbol string, limit int) (depthResult, error) {
	res, err := f.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return depthResult{}, err
	}
	out := depthResult{LastUpdateID: res.LastUpdateID}
	for _, b := range res.Bids {
		out.Bids = append(out.Bids, [2]string{b.Price, b.Quantity})
	}
	for _, a := range res.Asks {
		out.Asks = append(out.Asks, [2]string{a.Price, a.Quantity})
	}
	return out, nil
}

// BinanceSnapshotFetcher polls REST depth snapshots and injects them into
// the raw stream under the synthetic <symbol>@depthSnapshot stream name.
// The book reconstructor treats each one as a fresh snapshot, so periodic
// polling doubles as self-healing after sequence trouble.
type BinanceSnapshotFetcher struct {
	opts    SnapshotOptions
	fetcher depthFetcher
	limiter *rate.Limiter
	out     chan<- models.RawMessage
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Entry
}

// NewBinanceSnapshotFetcher creates a poller for spot (futuresMarket false)
// or USDT futures depth endpoints.
func NewBinanceSnapshotFetcher(futuresMarket bool, opts SnapshotOptions, out chan<- models.RawMessage) *BinanceSnapshotFetcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultSnapshotInterval
	}
	if opts.Depth <= 0 {
		opts.Depth = defaultSnapshotDepth
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 4
	}

	var fetcher depthFetcher
	if futuresMarket {
		fetcher = futuresFetcher{client: futures.NewClient("", "")}
	} else {
		fetcher = spotFetcher{client: binance.NewClient("", "")}
	}

	return &BinanceSnapshotFetcher{
		opts:    opts,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		out:     out,
		wg:      &sync.WaitGroup{},
		log: logger.GetLogger().WithComponent("binance_snapshot_fetcher").WithFields(logger.Fields{
			"futures": futuresMarket,
		}),
	}
}

// Start launches one polling worker per symbol.
func (f *BinanceSnapshotFetcher) Start(ctx context.Context) error {
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
	}).Info("starting snapshot fetcher")

	for _, symbol := range f.opts.Symbols {
		f.wg.Add(1)
		go f.poll(symbol)
	}
	return nil
}

// Stop waits for all polling workers to exit.
func (f *BinanceSnapshotFetcher) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.wg.Wait()
	f.log.Info("snapshot fetcher stopped")
}

func (f *BinanceSnapshotFetcher) poll(symbol string) {
	defer f.wg.Done()

	log := f.log.WithFields(logger.Fields{"symbol": symbol})
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	for {
		if err := f.fetchOnce(symbol); err != nil {
			if f.ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("depth snapshot fetch failed")
		}
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *BinanceSnapshotFetcher) fetchOnce(symbol string) error {
	if err := f.limiter.Wait(f.ctx); err != nil {
		return err
	}
	res, err := f.fetcher.fetch(f.ctx, symbol, f.opts.Depth)
	if err != nil {
		return err
	}

	envelope := struct {
		Stream string      `json:"stream"`
		Data   depthResult `json:"data"`
	}{
		Stream: strings.ToLower(symbol) + "@depthSnapshot",
		Data:   res,
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
