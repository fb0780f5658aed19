package classify

import (
	"fmt"
	"math"
	"strings"
)

// Severity bounds. Every score is clamped into this range.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// baseSeverity is the per-category starting score.
var baseSeverity = map[Category]int{
	SecurityAlert:      9,
	CriticalError:      8,
	WorkflowError:      7,
	SystemNotification: 6,
	HTTPStatus:         4,
	ResourceUsage:      3,
	UserAction:         2,
	DeprecationWarning: 2,
	Unknown:            1,
}

// defaultCriticalKeywords bump severity by one when they appear among a
// result's signals.
var defaultCriticalKeywords = []string{
	"breach",
	"exceeded",
	"failed repeatedly",
	"attack",
	"unauthorized",
	"escalation detected",
}

// ScorerOptions tune severity derivation.
type ScorerOptions struct {
	// CriticalKeywords overrides the built-in keyword set when non-nil.
	CriticalKeywords []string
	// HighConfidenceBoost is the confidence above which severity gains one.
	HighConfidenceBoost float64
	// LowConfidenceFloor is the confidence below which severity is scaled
	// down and capped below IncidentFloor.
	LowConfidenceFloor float64
	// IncidentFloor is the severity at which incidents are created;
	// low-confidence results are kept strictly below it.
	IncidentFloor int
}

// Scorer maps (category, signals, confidence) to an integer severity in
// [1,10]. It is a pure function over its inputs.
type Scorer struct {
	keywords   []string
	highBoost  float64
	lowFloor   float64
	incidentAt int
}

// NewScorer builds a Scorer, filling zero options with defaults.
func NewScorer(opts ScorerOptions) *Scorer {
	s := &Scorer{
		keywords:   opts.CriticalKeywords,
		highBoost:  opts.HighConfidenceBoost,
		lowFloor:   opts.LowConfidenceFloor,
		incidentAt: opts.IncidentFloor,
	}
	if s.keywords == nil {
		s.keywords = defaultCriticalKeywords
	}
	if s.highBoost == 0 {
		s.highBoost = 0.9
	}
	if s.lowFloor == 0 {
		s.lowFloor = 0.6
	}
	if s.incidentAt == 0 {
		s.incidentAt = 9
	}
	return s
}

// Score derives the severity for a classification result. Confidence must be
// a real number in [0,1]; anything else is rejected.
func (s *Scorer) Score(category Category, signals []string, confidence float64) (int, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}

	base, ok := baseSeverity[category]
	if !ok {
		base = MinSeverity
	}

	score := base
	if s.hasCriticalSignal(signals) {
		score++
	}
	if confidence > s.highBoost {
		score++
	}

	// Low-confidence results are scaled by confidence and kept below the
	// incident floor so an uncalibrated fallback cannot page anyone.
	if confidence < s.lowFloor {
		score = int(math.Round(float64(score) * confidence))
		if score > s.incidentAt-1 {
			score = s.incidentAt - 1
		}
	}

	if score < MinSeverity {
		score = MinSeverity
	}
	if score > MaxSeverity {
		score = MaxSeverity
	}
	return score, nil
}

func (s *Scorer) hasCriticalSignal(signals []string) bool {
	for _, sig := range signals {
		lowered := strings.ToLower(sig)
		for _, kw := range s.keywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
	}
	return false
}
