// Package process runs the ingestion pipeline: concurrent classification,
// severity scoring, alert policy evaluation, and incident qualification for
// a batch of raw log records.
package process

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/classify"
	"github.com/linnemanlabs/klaxon/internal/incident"
	"github.com/linnemanlabs/klaxon/internal/logrec"
	"github.com/linnemanlabs/klaxon/internal/policy"
)

// Event is one fully processed record, ready for persistence.
type Event struct {
	Result      classify.Result `json:"result"`
	Severity    int             `json:"severity"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// EventSink persists processed events. Implementations must tolerate
// being called from a goroutine that outlives the ingest request.
type EventSink interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// Summary reports what one batch produced.
type Summary struct {
	Events    []Event       `json:"events"`
	Stats     *policy.Stats `json:"stats"`
	Incidents []string      `json:"incident_ids,omitempty"`
}

// Config tunes the pipeline.
type Config struct {
	// Workers caps concurrent classification within a batch.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	return c
}

// Service orchestrates the pipeline stages for each batch.
type Service struct {
	cfg     Config
	cascade *classify.Cascade
	scorer  *classify.Scorer
	policy  *policy.Engine
	tracker *incident.Tracker
	sink    EventSink
	logger  log.Logger

	// wg tracks async persistence so Close can drain it.
	wg sync.WaitGroup
}

// NewService creates a pipeline service. tracker and sink may be nil; the
// corresponding stage is then skipped.
func NewService(cfg Config, cascade *classify.Cascade, scorer *classify.Scorer, pol *policy.Engine, tracker *incident.Tracker, sink EventSink, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		cascade: cascade,
		scorer:  scorer,
		policy:  pol,
		tracker: tracker,
		sink:    sink,
		logger:  logger,
	}
}

// Process runs one batch through the full pipeline. Events come back in
// input order regardless of classification concurrency. The only error
// source is context cancellation during classification; downstream stage
// failures are absorbed and reported through the summary and logs.
func (s *Service) Process(ctx context.Context, records []logrec.Record) (*Summary, error) {
	if len(records) == 0 {
		return &Summary{Stats: &policy.Stats{}}, nil
	}

	events := make([]Event, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := s.cascade.Classify(gctx, records[i])
			sev, err := s.scorer.Score(res.Category, res.Signals, res.Confidence)
			if err != nil {
				// Out-of-range confidence from a stage is a bug, not an
				// input problem. Score the event as unclassifiable instead
				// of dropping it.
				s.logger.Error(gctx, err, "severity scoring failed", "record_id", res.Record.ID)
				res.Category = classify.Unknown
				res.Confidence = 0
				sev, _ = s.scorer.Score(classify.Unknown, nil, 0)
			}
			events[i] = Event{Result: res, Severity: sev, ProcessedAt: time.Now().UTC()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]policy.Item, len(events))
	for i, ev := range events {
		items[i] = policy.Item{Result: ev.Result, Severity: ev.Severity}
	}
	stats, _ := s.policy.ProcessBatch(ctx, items)

	summary := &Summary{Events: events, Stats: stats}
	if s.tracker != nil {
		for _, ev := range events {
			inc, created, err := s.tracker.Observe(ctx, ev.Result, ev.Severity)
			if err != nil {
				s.logger.Error(ctx, err, "incident evaluation failed", "record_id", ev.Result.Record.ID)
				continue
			}
			if created {
				summary.Incidents = append(summary.Incidents, inc.ID)
			}
		}
	}

	s.persist(ctx, events)
	return summary, nil
}

// persist hands the batch to the sink without holding up the response.
// The detached context survives request cancellation so accepted events
// are not lost to a client disconnect.
func (s *Service) persist(ctx context.Context, events []Event) {
	if s.sink == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		storeCtx, cancel := context.WithTimeout(bg, 30*time.Second)
		defer cancel()
		if err := s.sink.StoreBatch(storeCtx, events); err != nil {
			s.logger.Error(storeCtx, err, "event persistence failed", "count", len(events))
		}
	}()
}

// Close waits for in-flight persistence to finish.
func (s *Service) Close() {
	s.wg.Wait()
}
