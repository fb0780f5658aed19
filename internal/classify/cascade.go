package classify

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/klaxon/internal/logrec"
)

// Cascade runs an ordered list of classifier stages against a record and
// always terminates with exactly one Result. Fallback order is data, not
// type structure: stages are tried in slice order and the first definitive
// answer wins.
type Cascade struct {
	stages []Classifier
	logger log.Logger
	hooks  CascadeHooks
}

// CascadeHooks are optional callbacks for instrumentation. Nil functions are
// skipped.
type CascadeHooks struct {
	OnStage    func(stage Stage, category Category, duration time.Duration)
	OnFallback func(from Stage)
	OnFailure  func(stage Stage)
}

// NewCascade builds a coordinator over the given stages.
func NewCascade(stages []Classifier, logger log.Logger, hooks CascadeHooks) *Cascade {
	if logger == nil {
		logger = log.Nop()
	}
	return &Cascade{stages: stages, logger: logger, hooks: hooks}
}

// Classify resolves one record to its terminal Result. No stage failure
// escapes: stage errors fall through to the next stage, and if the final
// stage fails the record is classified Unknown with zero confidence. The
// returned Stage records which stage produced the definitive answer.
func (c *Cascade) Classify(ctx context.Context, rec logrec.Record) Result {
	last := StageGenerative
	for _, stage := range c.stages {
		last = stage.Stage()
		start := time.Now()
		out, ok, err := stage.Classify(ctx, rec.Message)
		elapsed := time.Since(start)

		if err != nil {
			c.logger.Warn(ctx, "classifier stage failed",
				"stage", string(stage.Stage()),
				"source", rec.Source,
				"error", err,
			)
			if c.hooks.OnFailure != nil {
				c.hooks.OnFailure(stage.Stage())
			}
			continue
		}
		if !ok {
			if c.hooks.OnFallback != nil {
				c.hooks.OnFallback(stage.Stage())
			}
			continue
		}

		if c.hooks.OnStage != nil {
			c.hooks.OnStage(stage.Stage(), out.Category, elapsed)
		}
		return Result{
			Record:     rec,
			Category:   out.Category,
			Confidence: out.Confidence,
			Stage:      stage.Stage(),
			Signals:    out.Signals,
		}
	}

	// Every stage fell through. Terminal Unknown, attributed to the last
	// stage tried so the exhaustion is observable.
	if c.hooks.OnStage != nil {
		c.hooks.OnStage(last, Unknown, 0)
	}
	return Result{
		Record:     rec,
		Category:   Unknown,
		Confidence: 0,
		Stage:      last,
	}
}
