package mapper

import "fmt"

// ProtocolViolationError reports a sequence overlap failure during book
// reconstruction: the first delta after a snapshot does not continue from
// the snapshot's sequence number, so the local book cannot be trusted.
type ProtocolViolationError struct {
	Exchange     string
	Symbol       string
	LastSequence int64
	StartSeq     int64
	EndSeq       int64
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%s %s: book update [%d..%d] does not overlap snapshot sequence %d",
		e.Exchange, e.Symbol, e.StartSeq, e.EndSeq, e.LastSequence)
}
