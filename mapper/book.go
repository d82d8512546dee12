package mapper

import (
	"sort"
	"time"

	"tickflow/internal/container"
	"tickflow/logger"
	"tickflow/models"
)

// DefaultBookBufferSize bounds the number of deltas buffered per symbol
// while waiting for the initial snapshot.
const DefaultBookBufferSize = 2000

// OverlapFunc decides whether the first delta applied after a snapshot
// continues from lastSequence without a gap. Venues disagree on the exact
// comparator, so each exchange package supplies its own.
type OverlapFunc func(lastSequence, startSeq, endSeq int64) bool

// BookUpdate is one decoded snapshot or delta handed to a Reconstructor by
// an exchange mapper.
type BookUpdate struct {
	Symbol     string
	IsSnapshot bool
	Bids       []models.PriceLevel
	Asks       []models.PriceLevel
	StartSeq   int64
	EndSeq     int64
	Timestamp  time.Time
}

// ReconstructorOptions configures a book Reconstructor.
type ReconstructorOptions struct {
	Exchange string
	// Overlap validates the first delta after a snapshot. A nil Overlap
	// accepts any first delta (for venues that always open with a fresh
	// snapshot on the wire).
	Overlap OverlapFunc
	// BufferSize caps the per-symbol delta buffer; DefaultBookBufferSize
	// when zero.
	BufferSize int
	// IgnoreOverlapErrors downgrades a failed overlap validation to a log
	// line and marks the book validated anyway.
	IgnoreOverlapErrors bool
}

type depthState struct {
	bids              map[float64]float64
	asks              map[float64]float64
	lastSequence      int64
	snapshotProcessed bool
	firstValidated    bool
	buffered          *container.Ring[BookUpdate]
}

// Reconstructor maintains per-symbol local depth for one exchange mapper.
// Deltas arriving before the snapshot are buffered; once the snapshot lands
// they are replayed in order and sequence continuity is validated from then
// on. No BookChange is emitted until a snapshot has been processed.
type Reconstructor struct {
	opts  ReconstructorOptions
	books map[string]*depthState
	log   *logger.Entry
}

// NewReconstructor creates a Reconstructor for one exchange.
func NewReconstructor(opts ReconstructorOptions) *Reconstructor {
	if opts.BufferSize < 1 {
		opts.BufferSize = DefaultBookBufferSize
	}
	return &Reconstructor{
		opts:  opts,
		books: make(map[string]*depthState),
		log: logger.GetLogger().WithComponent("book_reconstructor").WithFields(logger.Fields{
			"exchange": opts.Exchange,
		}),
	}
}

func (r *Reconstructor) state(symbol string) *depthState {
	s, ok := r.books[symbol]
	if !ok {
		s = &depthState{
			bids:     make(map[float64]float64),
			asks:     make(map[float64]float64),
			buffered: container.NewRing[BookUpdate](r.opts.BufferSize),
		}
		r.books[symbol] = s
	}
	return s
}

// Apply feeds one decoded update through the state machine. The returned
// BookChange is nil when nothing should be emitted (delta buffered, stale
// delta dropped, or delta empty after filtering).
func (r *Reconstructor) Apply(u BookUpdate, localTimestamp time.Time) (*models.BookChange, error) {
	s := r.state(u.Symbol)

	if u.IsSnapshot {
		return r.applySnapshot(s, u, localTimestamp)
	}

	if !s.snapshotProcessed {
		s.buffered.Append(u)
		return nil, nil
	}
	return r.applyDelta(s, u, localTimestamp)
}

func (r *Reconstructor) applySnapshot(s *depthState, u BookUpdate, localTimestamp time.Time) (*models.BookChange, error) {
	s.bids = make(map[float64]float64, len(u.Bids))
	s.asks = make(map[float64]float64, len(u.Asks))
	for _, l := range u.Bids {
		if l.Amount > 0 {
			s.bids[l.Price] = l.Amount
		}
	}
	for _, l := range u.Asks {
		if l.Amount > 0 {
			s.asks[l.Price] = l.Amount
		}
	}
	s.lastSequence = u.EndSeq
	s.snapshotProcessed = true
	s.firstValidated = false

	replay := s.buffered.Items()
	s.buffered.Clear()
	for _, b := range replay {
		if _, err := r.applyDelta(s, b, localTimestamp); err != nil {
			return nil, err
		}
	}

	return &models.BookChange{
		Symbol:         u.Symbol,
		Exchange:       r.opts.Exchange,
		IsSnapshot:     true,
		Bids:           sortedLevels(s.bids, true),
		Asks:           sortedLevels(s.asks, false),
		Timestamp:      u.Timestamp,
		LocalTimestamp: localTimestamp,
	}, nil
}

func (r *Reconstructor) applyDelta(s *depthState, u BookUpdate, localTimestamp time.Time) (*models.BookChange, error) {
	if u.EndSeq <= s.lastSequence {
		return nil, nil
	}

	if !s.firstValidated {
		// A snapshot of an empty book carries no usable sequence, so the
		// first delta cannot be validated against it.
		if s.lastSequence > 0 && r.opts.Overlap != nil && !r.opts.Overlap(s.lastSequence, u.StartSeq, u.EndSeq) {
			if !r.opts.IgnoreOverlapErrors {
				return nil, &ProtocolViolationError{
					Exchange:     r.opts.Exchange,
					Symbol:       u.Symbol,
					LastSequence: s.lastSequence,
					StartSeq:     u.StartSeq,
					EndSeq:       u.EndSeq,
				}
			}
			r.log.WithFields(logger.Fields{
				"symbol":    u.Symbol,
				"last_seq":  s.lastSequence,
				"start_seq": u.StartSeq,
				"end_seq":   u.EndSeq,
			}).Warn("book update does not overlap snapshot, continuing as configured")
		}
		s.firstValidated = true
	}

	for _, l := range u.Bids {
		if l.Amount > 0 {
			s.bids[l.Price] = l.Amount
		} else {
			delete(s.bids, l.Price)
		}
	}
	for _, l := range u.Asks {
		if l.Amount > 0 {
			s.asks[l.Price] = l.Amount
		} else {
			delete(s.asks, l.Price)
		}
	}
	s.lastSequence = u.EndSeq

	if len(u.Bids) == 0 && len(u.Asks) == 0 {
		return nil, nil
	}
	return &models.BookChange{
		Symbol:         u.Symbol,
		Exchange:       r.opts.Exchange,
		IsSnapshot:     false,
		Bids:           u.Bids,
		Asks:           u.Asks,
		Timestamp:      u.Timestamp,
		LocalTimestamp: localTimestamp,
	}, nil
}

// Snapshotted reports whether a snapshot has been processed for symbol.
func (r *Reconstructor) Snapshotted(symbol string) bool {
	s, ok := r.books[symbol]
	return ok && s.snapshotProcessed
}

// Reset discards all per-symbol state. Must be called on disconnect since
// venue sequence numbers are not meaningful across a reconnect.
func (r *Reconstructor) Reset() {
	r.books = make(map[string]*depthState)
}

func sortedLevels(side map[float64]float64, descending bool) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(side))
	for price, amount := range side {
		out = append(out, models.PriceLevel{Price: price, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
