// Package classify implements the hybrid classification cascade: an ordered
// sequence of classifier stages, each a fallback for the previous, that turns
// a raw log line into exactly one (category, confidence, stage) result.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linnemanlabs/klaxon/internal/logrec"
)

// Category is an operational label assigned to a log message.
type Category string

const (
	SecurityAlert      Category = "Security Alert"
	CriticalError      Category = "Critical Error"
	WorkflowError      Category = "Workflow Error"
	SystemNotification Category = "System Notification"
	HTTPStatus         Category = "HTTP Status"
	ResourceUsage      Category = "Resource Usage"
	UserAction         Category = "User Action"
	DeprecationWarning Category = "Deprecation Warning"
	Unknown            Category = "Unclassified"
)

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{
		SecurityAlert,
		CriticalError,
		WorkflowError,
		SystemNotification,
		HTTPStatus,
		ResourceUsage,
		UserAction,
		DeprecationWarning,
		Unknown,
	}
}

// ErrInvalidLabel is returned when a label from an external provider does not
// map to any known category.
var ErrInvalidLabel = errors.New("label does not map to a known category")

// ParseCategory maps a free-text label to a Category. Matching is
// case-insensitive and tolerates surrounding whitespace and punctuation that
// generative providers tend to add.
func ParseCategory(label string) (Category, error) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(label), `."'`))
	for _, c := range Categories() {
		if cleaned == strings.ToLower(string(c)) {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
}

// Stage identifies which cascade stage produced a classification.
type Stage string

const (
	StagePattern    Stage = "pattern"
	StageSemantic   Stage = "semantic"
	StageGenerative Stage = "generative"
)

// Outcome is a single stage's answer for a message.
type Outcome struct {
	Category   Category
	Confidence float64
	Signals    []string
}

// Result is the terminal classification for one log record. Exactly one
// Result is produced per record and it is immutable thereafter.
type Result struct {
	Record     logrec.Record `json:"record"`
	Category   Category      `json:"category"`
	Confidence float64       `json:"confidence"`
	Stage      Stage         `json:"stage"`
	Signals    []string      `json:"signals,omitempty"`
}

// Classifier is one cascade stage. Classify returns ok=false when the stage
// has no answer for the message; an error also counts as no answer but is
// surfaced to the coordinator for logging and metrics.
type Classifier interface {
	Stage() Stage
	Classify(ctx context.Context, message string) (Outcome, bool, error)
}
