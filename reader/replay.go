package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

// captureRecord is one line of an NDJSON capture file. A blank line between
// records marks the point where the upstream connection was lost during
// capture.
type captureRecord struct {
	LocalTimestamp time.Time       `json:"localTimestamp"`
	Payload        json.RawMessage `json:"payload"`
}

// FileSource replays NDJSON capture files in order, preserving the
// recorded local timestamps so downstream merging sorts historically.
type FileSource struct {
	files  []string
	buffer int
	log    *logger.Entry
}

func NewFileSource(files []string, buffer int) *FileSource {
	if buffer < 1 {
		buffer = 1
	}
	return &FileSource{
		files:  files,
		buffer: buffer,
		log:    logger.GetLogger().WithComponent("file_source"),
	}
}

// Messages streams every record of every file. The channel closes when all
// files are exhausted, a file cannot be read, or ctx is cancelled.
func (s *FileSource) Messages(ctx context.Context) <-chan models.RawMessage {
	out := make(chan models.RawMessage, s.buffer)
	go func() {
		defer close(out)
		for _, path := range s.files {
			if err := s.replayFile(ctx, path, out); err != nil {
				if ctx.Err() == nil {
					s.log.WithError(err).WithFields(logger.Fields{"file": path}).Error("replay failed")
				}
				return
			}
		}
	}()
	return out
}

func (s *FileSource) replayFile(ctx context.Context, path string, out chan<- models.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lastSeen time.Time
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		var msg models.RawMessage
		if len(text) == 0 {
			msg = models.RawMessage{LocalTimestamp: lastSeen, Disconnect: true}
		} else {
			var rec captureRecord
			if err := json.Unmarshal(text, &rec); err != nil {
				return fmt.Errorf("parse %s:%d: %w", path, line, err)
			}
			lastSeen = rec.LocalTimestamp
			msg = models.RawMessage{LocalTimestamp: rec.LocalTimestamp, Payload: rec.Payload}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
