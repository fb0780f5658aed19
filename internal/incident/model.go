// Package incident tracks escalated alerts as SLA-bound incidents with a
// forward-only lifecycle and an external ticket reference.
package incident

import (
	"fmt"
	"time"
)

// Priority is the ticket priority band derived from severity.
type Priority string

const (
	PriorityHighest Priority = "Highest"
	PriorityHigh    Priority = "High"
	PriorityMedium  Priority = "Medium"
	PriorityLow     Priority = "Low"
	PriorityLowest  Priority = "Lowest"
)

// PriorityForSeverity maps a 1-10 severity score onto a priority band.
// Out-of-range scores clamp to the nearest band.
func PriorityForSeverity(severity int) Priority {
	switch {
	case severity >= 9:
		return PriorityHighest
	case severity >= 7:
		return PriorityHigh
	case severity >= 5:
		return PriorityMedium
	case severity >= 3:
		return PriorityLow
	default:
		return PriorityLowest
	}
}

// SLA returns the resolution deadline budget for the priority band.
func (p Priority) SLA() time.Duration {
	switch p {
	case PriorityHighest:
		return time.Hour
	case PriorityHigh:
		return 4 * time.Hour
	case PriorityMedium:
		return 24 * time.Hour
	case PriorityLow:
		return 72 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusOpen means created, not yet picked up.
	StatusOpen Status = "open"

	// StatusInProgress means someone is actively working it.
	StatusInProgress Status = "in_progress"

	// StatusResolved means the underlying condition is fixed.
	StatusResolved Status = "resolved"

	// StatusClosed means resolved and verified; terminal.
	StatusClosed Status = "closed"
)

// statusRank orders the lifecycle. Transitions only move forward.
func statusRank(s Status) int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	case StatusClosed:
		return 3
	default:
		return -1
	}
}

// Active reports whether the incident still counts against its SLA.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// CanTransition reports whether moving from s to next is a legal
// forward step. Skipping intermediate states is allowed; moving
// backwards or to the same state is not.
func (s Status) CanTransition(next Status) bool {
	from, to := statusRank(s), statusRank(next)
	return from >= 0 && to >= 0 && to > from
}

// ErrBadTransition is returned for a backwards or unknown status move.
type ErrBadTransition struct {
	From, To Status
}

func (e *ErrBadTransition) Error() string {
	return fmt.Sprintf("illegal status transition %q -> %q", e.From, e.To)
}

// Transition is one recorded lifecycle step.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	Note string    `json:"note,omitempty"`
	At   time.Time `json:"at"`
}

// Incident is one escalated alert under SLA tracking.
type Incident struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Category    string       `json:"category"`
	Source      string       `json:"source"`
	Severity    int          `json:"severity"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	Summary     string       `json:"summary"`
	TicketID    string       `json:"ticket_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DueAt       time.Time    `json:"due_at"`
	Transitions []Transition `json:"transitions,omitempty"`
}

// SLAViolated reports whether the incident is still active past its deadline.
func (i *Incident) SLAViolated(now time.Time) bool {
	return i.Status.Active() && now.After(i.DueAt)
}

// escalationFraction of the SLA budget that may remain before an active
// incident is flagged as nearing escalation.
const escalationFraction = 0.5

// NearingEscalation reports whether an active incident has consumed at
// least half of its SLA budget. Incidents already past the deadline also
// report true.
func (i *Incident) NearingEscalation(now time.Time) bool {
	if !i.Status.Active() {
		return false
	}
	remaining := i.DueAt.Sub(now)
	budget := i.DueAt.Sub(i.CreatedAt)
	return float64(remaining) <= float64(budget)*escalationFraction
}
