package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/klaxon/internal/logrec"
)

// fakeStage is a scripted cascade stage.
type fakeStage struct {
	stage   Stage
	outcome Outcome
	ok      bool
	err     error
	calls   int
}

func (f *fakeStage) Stage() Stage { return f.stage }

func (f *fakeStage) Classify(_ context.Context, _ string) (Outcome, bool, error) {
	f.calls++
	return f.outcome, f.ok, f.err
}

func TestCascadeFirstDefinitiveAnswerWins(t *testing.T) {
	t.Parallel()

	pattern := &fakeStage{
		stage:   StagePattern,
		outcome: Outcome{Category: SecurityAlert, Confidence: 1.0, Signals: []string{"security breach"}},
		ok:      true,
	}
	semantic := &fakeStage{stage: StageSemantic, outcome: Outcome{Category: UserAction}, ok: true}

	c := NewCascade([]Classifier{pattern, semantic}, nil, CascadeHooks{})
	rec := logrec.New("auth-service", "security breach on node 7")
	res := c.Classify(context.Background(), rec)

	if res.Category != SecurityAlert {
		t.Fatalf("category = %q, want %q", res.Category, SecurityAlert)
	}
	if res.Stage != StagePattern {
		t.Fatalf("stage = %q, want %q", res.Stage, StagePattern)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", res.Confidence)
	}
	if res.Record.ID != rec.ID {
		t.Fatalf("record not carried through: got %q, want %q", res.Record.ID, rec.ID)
	}
	if semantic.calls != 0 {
		t.Fatalf("later stage called %d times, want 0", semantic.calls)
	}
}

func TestCascadeFallbackOnNoAnswer(t *testing.T) {
	t.Parallel()

	pattern := &fakeStage{stage: StagePattern}
	semantic := &fakeStage{
		stage:   StageSemantic,
		outcome: Outcome{Category: ResourceUsage, Confidence: 0.82},
		ok:      true,
	}

	var fallbacks []Stage
	c := NewCascade([]Classifier{pattern, semantic}, nil, CascadeHooks{
		OnFallback: func(from Stage) { fallbacks = append(fallbacks, from) },
	})
	res := c.Classify(context.Background(), logrec.New("node-3", "swap pressure rising"))

	if res.Category != ResourceUsage || res.Stage != StageSemantic {
		t.Fatalf("got %q from %q, want %q from %q", res.Category, res.Stage, ResourceUsage, StageSemantic)
	}
	if len(fallbacks) != 1 || fallbacks[0] != StagePattern {
		t.Fatalf("fallbacks = %v, want [pattern]", fallbacks)
	}
}

func TestCascadeStageErrorFallsThrough(t *testing.T) {
	t.Parallel()

	semantic := &fakeStage{stage: StageSemantic, err: errors.New("embedder unreachable")}
	generative := &fakeStage{
		stage:   StageGenerative,
		outcome: Outcome{Category: WorkflowError, Confidence: 0.6},
		ok:      true,
	}

	var failures []Stage
	c := NewCascade([]Classifier{semantic, generative}, nil, CascadeHooks{
		OnFailure: func(stage Stage) { failures = append(failures, stage) },
	})
	res := c.Classify(context.Background(), logrec.New("etl", "job import-231 aborted"))

	if res.Category != WorkflowError || res.Stage != StageGenerative {
		t.Fatalf("got %q from %q, want %q from %q", res.Category, res.Stage, WorkflowError, StageGenerative)
	}
	if len(failures) != 1 || failures[0] != StageSemantic {
		t.Fatalf("failures = %v, want [semantic]", failures)
	}
}

func TestCascadeExhaustionYieldsUnknown(t *testing.T) {
	t.Parallel()

	pattern := &fakeStage{stage: StagePattern}
	generative := &fakeStage{stage: StageGenerative, err: errors.New("rate limited")}

	var terminal Stage
	var terminalCat Category
	c := NewCascade([]Classifier{pattern, generative}, nil, CascadeHooks{
		OnStage: func(stage Stage, category Category, _ time.Duration) {
			terminal = stage
			terminalCat = category
		},
	})
	res := c.Classify(context.Background(), logrec.New("unknown-src", "???"))

	if res.Category != Unknown {
		t.Fatalf("category = %q, want %q", res.Category, Unknown)
	}
	if res.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", res.Confidence)
	}
	if res.Stage != StageGenerative {
		t.Fatalf("stage = %q, want %q", res.Stage, StageGenerative)
	}
	if terminal != StageGenerative || terminalCat != Unknown {
		t.Fatalf("OnStage saw (%q, %q), want (%q, %q)", terminal, terminalCat, StageGenerative, Unknown)
	}
}

func TestCascadeNoStages(t *testing.T) {
	t.Parallel()

	c := NewCascade(nil, nil, CascadeHooks{})
	res := c.Classify(context.Background(), logrec.New("src", "msg"))
	if res.Category != Unknown {
		t.Fatalf("category = %q, want %q", res.Category, Unknown)
	}
}

func TestCascadeOnStageHookReceivesDuration(t *testing.T) {
	t.Parallel()

	pattern := &fakeStage{
		stage:   StagePattern,
		outcome: Outcome{Category: HTTPStatus, Confidence: 1.0},
		ok:      true,
	}

	var hookStage Stage
	hookCalls := 0
	c := NewCascade([]Classifier{pattern}, nil, CascadeHooks{
		OnStage: func(stage Stage, _ Category, d time.Duration) {
			hookCalls++
			hookStage = stage
			if d < 0 {
				t.Errorf("negative duration %v", d)
			}
		},
	})
	c.Classify(context.Background(), logrec.New("gw", "GET /health HTTP/1.1"))

	if hookCalls != 1 || hookStage != StagePattern {
		t.Fatalf("OnStage calls=%d stage=%q, want 1 call from pattern", hookCalls, hookStage)
	}
}
