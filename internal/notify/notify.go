// Package notify defines the alert intent emitted by the policy engine and
// the transport contract that delivers it. The engine decides what to send
// and when; transports own the wire format and delivery.
package notify

import (
	"context"
	"time"

	"github.com/linnemanlabs/klaxon/internal/classify"
)

// Kind distinguishes real-time single-event alerts from per-batch aggregates.
type Kind string

const (
	KindImmediate    Kind = "immediate"
	KindBatchSummary Kind = "batch_summary"
)

// Channel is the class of destination an intent is routed to. Transports map
// channel classes onto concrete destinations.
type Channel string

const (
	ChannelSecurity Channel = "security"
	ChannelSystem   Channel = "system"
	ChannelIncident Channel = "incident"
	ChannelGeneral  Channel = "general"
)

// Intent is one alert the policy engine decided to send. Intents are not
// retained after dispatch except for the dedup ledger entry they update.
type Intent struct {
	Kind        Kind
	Channel     Channel
	Category    classify.Category
	Severity    int
	Source      string
	Fingerprint string
	Summary     string
	CreatedAt   time.Time
	Batch       *BatchReport // set only for KindBatchSummary
}

// BatchReport aggregates one processing batch for a summary intent.
type BatchReport struct {
	Total        int
	HighSeverity int
	Critical     int
	Suppressed   int
	Failed       int
	ByCategory   map[classify.Category]int
}

// Notifier delivers intents to a channel class. Send failures are reported
// to the caller and never retried here.
type Notifier interface {
	Send(ctx context.Context, intent *Intent) error
}
