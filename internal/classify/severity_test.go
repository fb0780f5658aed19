package classify

import (
	"math"
	"testing"
)

func TestScoreBaseSeverities(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	tests := []struct {
		category Category
		want     int
	}{
		{SecurityAlert, 9},
		{CriticalError, 8},
		{WorkflowError, 7},
		{SystemNotification, 6},
		{HTTPStatus, 4},
		{ResourceUsage, 3},
		{UserAction, 2},
		{DeprecationWarning, 2},
		{Unknown, 1},
	}
	for _, tc := range tests {
		// Confidence 0.8 sits between the low floor and the high boost, so
		// the raw base score comes through unmodified.
		got, err := s.Score(tc.category, nil, 0.8)
		if err != nil {
			t.Errorf("Score(%q): %v", tc.category, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Score(%q) = %d, want %d", tc.category, got, tc.want)
		}
	}
}

func TestScoreCriticalKeywordBump(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	got, err := s.Score(ResourceUsage, []string{"memory limit exceeded"}, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Fatalf("with keyword: got %d, want 4", got)
	}

	got, err = s.Score(ResourceUsage, []string{"cleanup finished"}, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("without keyword: got %d, want 3", got)
	}
}

func TestScoreHighConfidenceBoost(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	got, err := s.Score(WorkflowError, nil, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Fatalf("got %d, want 8", got)
	}

	// Exactly at the boundary does not boost.
	got, err = s.Score(WorkflowError, nil, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Fatalf("at boundary: got %d, want 7", got)
	}
}

func TestScoreClampsAtMax(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	// Base 9 + keyword + high confidence would be 11 unclamped.
	got, err := s.Score(SecurityAlert, []string{"security breach confirmed"}, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if got != MaxSeverity {
		t.Fatalf("got %d, want %d", got, MaxSeverity)
	}
}

func TestScoreLowConfidenceStaysBelowIncidentFloor(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	// A low-confidence security result must never reach the incident floor,
	// no matter how severe the category.
	for _, conf := range []float64{0, 0.1, 0.3, 0.59} {
		got, err := s.Score(SecurityAlert, []string{"unauthorized access"}, conf)
		if err != nil {
			t.Fatalf("Score(conf=%v): %v", conf, err)
		}
		if got >= 9 {
			t.Errorf("Score(conf=%v) = %d, want < 9", conf, got)
		}
		if got < MinSeverity {
			t.Errorf("Score(conf=%v) = %d, below minimum", conf, got)
		}
	}
}

func TestScoreLowConfidenceScaling(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	// Base 6, scaled by 0.5, rounds to 3.
	got, err := s.Score(SystemNotification, nil, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}

	// Zero confidence floors at the minimum rather than zero.
	got, err = s.Score(Unknown, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != MinSeverity {
		t.Fatalf("got %d, want %d", got, MinSeverity)
	}
}

func TestScoreRejectsInvalidConfidence(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{})

	for _, conf := range []float64{-0.01, 1.01, math.NaN()} {
		if _, err := s.Score(SecurityAlert, nil, conf); err == nil {
			t.Errorf("Score(conf=%v): want error", conf)
		}
	}
}

func TestScoreCustomOptions(t *testing.T) {
	t.Parallel()

	s := NewScorer(ScorerOptions{
		CriticalKeywords: []string{"meltdown"},
		IncidentFloor:    7,
	})

	got, err := s.Score(WorkflowError, []string{"reactor meltdown imminent"}, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Fatalf("custom keyword: got %d, want 8", got)
	}

	// The default keyword set is replaced, not extended.
	got, err = s.Score(WorkflowError, []string{"unauthorized access"}, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Fatalf("default keyword should not apply: got %d, want 7", got)
	}

	// Low confidence caps below the custom floor.
	got, err = s.Score(SecurityAlert, nil, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got >= 7 {
		t.Fatalf("got %d, want < 7", got)
	}
}
