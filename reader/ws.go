package reader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

const (
	defaultStaleThreshold = 30 * time.Second
	defaultPingInterval   = 15 * time.Second
	reconnectBaseDelay    = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// WSOptions configures a websocket source for one exchange.
type WSOptions struct {
	Exchange string
	URL      string
	// Subscriptions are sent verbatim after every (re)connect.
	Subscriptions [][]byte
	// StaleThreshold forces a reconnect when no message arrives in time.
	StaleThreshold time.Duration
	PingInterval   time.Duration
	Buffer         int
}

// WSReader maintains one websocket connection to a venue, resubscribing
// after every drop. Each reconnect first surfaces a disconnect record so
// downstream state can be discarded.
type WSReader struct {
	opts    WSOptions
	out     chan models.RawMessage
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Entry
}

// NewWSReader creates a websocket source from its exchange config.
func NewWSReader(exchange string, cfg config.ExchangeSourceConfig, subscriptions [][]byte, buffer int) *WSReader {
	return NewWSReaderWithOptions(WSOptions{
		Exchange:       exchange,
		URL:            cfg.URL,
		Subscriptions:  subscriptions,
		StaleThreshold: cfg.StaleThreshold,
		PingInterval:   cfg.PingInterval,
		Buffer:         buffer,
	})
}

func NewWSReaderWithOptions(opts WSOptions) *WSReader {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = defaultStaleThreshold
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	return &WSReader{
		opts: opts,
		out:  make(chan models.RawMessage, opts.Buffer),
		wg:   &sync.WaitGroup{},
		log: logger.GetLogger().WithComponent("ws_reader").WithFields(logger.Fields{
			"exchange": opts.Exchange,
		}),
	}
}

// Messages returns the raw record stream. It closes after Stop or context
// cancellation.
func (r *WSReader) Messages() <-chan models.RawMessage { return r.out }

// Start begins the connect/read/reconnect loop.
func (r *WSReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("ws reader for %s already running", r.opts.Exchange)
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	r.log.WithFields(logger.Fields{"url": r.opts.URL}).Info("starting ws reader")

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop waits for the reader to drain. The context passed to Start must be
// cancelled first.
func (r *WSReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("ws reader stopped")
}

func (r *WSReader) run() {
	defer r.wg.Done()
	defer close(r.out)

	delay := reconnectBaseDelay
	for {
		if r.ctx.Err() != nil {
			return
		}

		session := uuid.NewString()
		log := r.log.WithFields(logger.Fields{"session": session})

		connected, err := r.session(log)
		if err != nil {
			log.WithError(err).Warn("ws session ended")
		}
		if r.ctx.Err() != nil {
			return
		}

		// tell downstream before attempting to reconnect
		select {
		case r.out <- models.RawMessage{LocalTimestamp: time.Now().UTC(), Disconnect: true}:
		case <-r.ctx.Done():
			return
		}

		if connected {
			delay = reconnectBaseDelay
		} else if delay < reconnectMaxDelay {
			delay *= 2
		}
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			return
		}
	}
}

// session dials, subscribes and reads until the connection fails. It
// reports whether the dial itself succeeded so the reconnect backoff can
// reset after a healthy session.
func (r *WSReader) session(log *logger.Entry) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, r.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", r.opts.URL, err)
	}
	defer conn.Close()

	for _, sub := range r.opts.Subscriptions {
		if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
			return true, fmt.Errorf("subscribe: %w", err)
		}
	}
	log.WithFields(logger.Fields{"subscriptions": len(r.opts.Subscriptions)}).Info("ws connected")

	done := make(chan struct{})
	defer close(done)
	go r.keepAlive(conn, done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.opts.StaleThreshold)); err != nil {
			return true, err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		select {
		case r.out <- models.RawMessage{LocalTimestamp: time.Now().UTC(), Payload: payload}:
		case <-r.ctx.Done():
			return true, nil
		}
	}
}

func (r *WSReader) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
