package incident

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no incident matches the requested ID.
var ErrNotFound = errors.New("incident not found")

// Store is the persistence interface for incidents.
//
// CreateIfAbsent must be atomic with respect to the incident key: when two
// callers race on the same key while an active incident exists, exactly one
// create wins and the other receives the existing incident.
type Store interface {
	// CreateIfAbsent inserts inc unless an active incident with the same key
	// already exists. Returns created=false with the existing incident when
	// the key is taken.
	CreateIfAbsent(ctx context.Context, inc *Incident) (created bool, existing *Incident, err error)

	// Get retrieves an incident by ID.
	Get(ctx context.Context, id string) (*Incident, bool, error)

	// Update persists status, ticket reference, timestamps, and the
	// transition history of an existing incident.
	Update(ctx context.Context, inc *Incident) error

	// ListActive returns every incident whose status still counts against
	// its SLA, ordered by due time ascending.
	ListActive(ctx context.Context) ([]*Incident, error)
}
