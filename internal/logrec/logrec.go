// Package logrec defines the immutable log record that enters the
// classification pipeline.
package logrec

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is a single raw log line as received from an emitting system.
// Records are created at ingestion and never mutated afterwards.
type Record struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// New creates a Record with a fresh ULID and the current receive time.
func New(source, message string) Record {
	return Record{
		ID:         ulid.Make().String(),
		Source:     source,
		Message:    message,
		ReceivedAt: time.Now().UTC(),
	}
}
