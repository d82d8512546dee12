package models

import "time"

// Filter declares a channel subscription for a data source, optionally
// scoped to specific symbols.
type Filter struct {
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols,omitempty"`
}

// RawMessage is one record from a raw data source: the venue payload plus
// the local receipt time. A record with Disconnect set carries no payload
// and marks a lost upstream connection.
type RawMessage struct {
	LocalTimestamp time.Time
	Payload        []byte
	Disconnect     bool
}
