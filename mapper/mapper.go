// Package mapper defines the protocol translator contract shared by all
// per-exchange packages, plus the two stateful building blocks they embed:
// the order book reconstructor and the derivative ticker accumulator.
package mapper

import (
	"time"

	"tickflow/models"
)

// Mapper translates one venue channel into canonical events.
//
// CanHandle is a pure predicate over the raw message's discriminating
// fields. Map produces zero or more canonical events for a recognized
// message; it returns an error only for data integrity violations that make
// the stream unverifiable. Reset clears all internal state and must be
// called when the upstream connection is lost.
type Mapper interface {
	CanHandle(raw []byte) bool
	Filters(symbols []string) []models.Filter
	Map(raw []byte, localTimestamp time.Time) ([]models.Event, error)
	Reset()
}

// Dispatcher routes each raw message to every registered mapper whose
// CanHandle predicate matches, concatenating outputs in registration order.
type Dispatcher struct {
	exchange string
	mappers  []Mapper
}

// NewDispatcher creates a dispatcher for one exchange.
func NewDispatcher(exchange string, mappers ...Mapper) *Dispatcher {
	return &Dispatcher{exchange: exchange, mappers: mappers}
}

// Exchange returns the exchange id this dispatcher serves.
func (d *Dispatcher) Exchange() string { return d.exchange }

// Filters merges the subscription filters of all registered mappers.
func (d *Dispatcher) Filters(symbols []string) []models.Filter {
	var out []models.Filter
	for _, m := range d.mappers {
		out = append(out, m.Filters(symbols)...)
	}
	return out
}

// Dispatch maps one raw message through every matching mapper. Unrecognized
// messages yield no events and no error.
func (d *Dispatcher) Dispatch(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, m := range d.mappers {
		if !m.CanHandle(raw) {
			continue
		}
		events, err := m.Map(raw, localTimestamp)
		if err != nil {
			return out, err
		}
		out = append(out, events...)
	}
	return out, nil
}

// Reset clears the state of every registered mapper.
func (d *Dispatcher) Reset() {
	for _, m := range d.mappers {
		m.Reset()
	}
}
