// Package policy turns a stream of scored classification results into
// rate-limited, deduplicated alert intents. It owns the process-wide dedup
// ledger and the per-batch aggregation triggers.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/classify"
	"github.com/linnemanlabs/klaxon/internal/notify"
)

// Item is one scored classification entering policy evaluation.
type Item struct {
	Result   classify.Result
	Severity int
}

// Config tunes the policy engine. Zero values fall back to defaults.
type Config struct {
	// CriticalSeverity routes an immediate alert to the security channel.
	CriticalSeverity int
	// HighSeverity routes an immediate alert to the system channel.
	HighSeverity int
	// RateLimitWindow suppresses repeat immediate alerts per fingerprint.
	RateLimitWindow time.Duration
	// RetentionMultiplier scales the window into the ledger eviction age.
	RetentionMultiplier int
	// BatchSizeThreshold triggers a batch summary on total item count.
	BatchSizeThreshold int
	// HighSeverityBatchThreshold triggers a batch summary on high-severity count.
	HighSeverityBatchThreshold int
}

func (c Config) withDefaults() Config {
	if c.CriticalSeverity == 0 {
		c.CriticalSeverity = 8
	}
	if c.HighSeverity == 0 {
		c.HighSeverity = 6
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = 5 * time.Minute
	}
	if c.RetentionMultiplier == 0 {
		c.RetentionMultiplier = 3
	}
	if c.BatchSizeThreshold == 0 {
		c.BatchSizeThreshold = 10
	}
	if c.HighSeverityBatchThreshold == 0 {
		c.HighSeverityBatchThreshold = 5
	}
	return c
}

// Stats summarizes one policy batch for the caller and for operator metrics.
type Stats struct {
	Total          int  `json:"total"`
	Dispatched     int  `json:"dispatched"`
	Suppressed     int  `json:"suppressed"`
	FailedDispatch int  `json:"failed_dispatch"`
	HighSeverity   int  `json:"high_severity"`
	Critical       int  `json:"critical"`
	BatchSummary   bool `json:"batch_summary"`
}

// Engine applies dedup, routing, and batch triggers. One Engine serves all
// workers; the ledger serializes window checks and reservations so a
// fingerprint dispatches at most once per window across concurrent batches.
type Engine struct {
	cfg      Config
	notifier notify.Notifier
	ledger   *Ledger
	logger   log.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewEngine creates a policy engine. notifier may be nil, in which case
// intents are produced but nothing is delivered.
func NewEngine(cfg Config, notifier notify.Notifier, logger log.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		notifier: notifier,
		ledger:   NewLedger(cfg.RateLimitWindow, cfg.RetentionMultiplier),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Fingerprint derives the dedup key for a category/source pair.
func Fingerprint(category classify.Category, source string) string {
	sum := sha256.Sum256([]byte(string(category) + "|" + source))
	return hex.EncodeToString(sum[:8])
}

// ProcessBatch evaluates one batch of scored results. It returns the batch
// statistics and every immediate intent that was emitted (dispatch failures
// included; dedup-suppressed items emit nothing). One item's dispatch failure
// never prevents the rest of the batch from being evaluated.
func (e *Engine) ProcessBatch(ctx context.Context, items []Item) (*Stats, []*notify.Intent) {
	stats := &Stats{Total: len(items)}
	byCategory := make(map[classify.Category]int)
	var intents []*notify.Intent

	for i := range items {
		item := &items[i]
		byCategory[item.Result.Category]++

		switch {
		case item.Severity >= e.cfg.CriticalSeverity:
			stats.Critical++
		case item.Severity >= e.cfg.HighSeverity:
			stats.HighSeverity++
		}

		intent, suppressed := e.evaluateImmediate(ctx, item)
		if suppressed {
			stats.Suppressed++
			continue
		}
		if intent == nil {
			continue
		}
		intents = append(intents, intent)
		if e.dispatch(ctx, intent) {
			stats.Dispatched++
		} else {
			stats.FailedDispatch++
		}
	}

	if e.shouldSummarize(stats) {
		stats.BatchSummary = true
		summary := e.buildSummary(stats, byCategory)
		intents = append(intents, summary)
		// Batch summaries bypass the fingerprint ledger entirely.
		if e.sendSummary(ctx, summary) {
			stats.Dispatched++
		} else {
			stats.FailedDispatch++
		}
	}

	if e.metrics != nil {
		e.metrics.observeBatch(stats)
	}
	return stats, intents
}

// evaluateImmediate decides whether the item warrants a real-time alert.
// suppressed is true when a fingerprint-identical alert was dispatched
// within the rate-limit window or is in flight on another batch. A returned
// intent holds a ledger reservation that dispatch must settle.
func (e *Engine) evaluateImmediate(_ context.Context, item *Item) (intent *notify.Intent, suppressed bool) {
	var channel notify.Channel
	switch {
	case item.Severity >= e.cfg.CriticalSeverity:
		channel = notify.ChannelSecurity
	case item.Severity >= e.cfg.HighSeverity:
		channel = notify.ChannelSystem
	default:
		return nil, false
	}

	fp := Fingerprint(item.Result.Category, item.Result.Record.Source)
	if !e.ledger.Reserve(fp, e.now()) {
		return nil, true
	}

	return &notify.Intent{
		Kind:        notify.KindImmediate,
		Channel:     channel,
		Category:    item.Result.Category,
		Severity:    item.Severity,
		Source:      item.Result.Record.Source,
		Fingerprint: fp,
		Summary:     item.Result.Record.Message,
		CreatedAt:   e.now(),
	}, false
}

// dispatch delivers an immediate intent and settles its ledger reservation:
// confirmed after a successful send, released on failure so a caller-driven
// retry can still fire.
func (e *Engine) dispatch(ctx context.Context, intent *notify.Intent) bool {
	if e.notifier == nil {
		e.ledger.Confirm(intent.Fingerprint, e.now())
		return true
	}
	if err := e.notifier.Send(ctx, intent); err != nil {
		e.ledger.Release(intent.Fingerprint)
		e.logger.Error(ctx, err, "alert dispatch failed",
			"fingerprint", intent.Fingerprint,
			"channel", string(intent.Channel),
		)
		return false
	}
	e.ledger.Confirm(intent.Fingerprint, e.now())
	return true
}

func (e *Engine) sendSummary(ctx context.Context, summary *notify.Intent) bool {
	if e.notifier == nil {
		return true
	}
	if err := e.notifier.Send(ctx, summary); err != nil {
		e.logger.Error(ctx, err, "batch summary dispatch failed")
		return false
	}
	return true
}

func (e *Engine) shouldSummarize(stats *Stats) bool {
	return stats.Total >= e.cfg.BatchSizeThreshold ||
		stats.HighSeverity >= e.cfg.HighSeverityBatchThreshold ||
		stats.Critical >= 1
}

func (e *Engine) buildSummary(stats *Stats, byCategory map[classify.Category]int) *notify.Intent {
	return &notify.Intent{
		Kind:      notify.KindBatchSummary,
		Channel:   notify.ChannelGeneral,
		CreatedAt: e.now(),
		Batch: &notify.BatchReport{
			Total:        stats.Total,
			HighSeverity: stats.HighSeverity,
			Critical:     stats.Critical,
			Suppressed:   stats.Suppressed,
			Failed:       stats.FailedDispatch,
			ByCategory:   byCategory,
		},
	}
}
