// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/klaxon/internal/incident"
)

// Store holds incidents in memory. Suitable for dev/testing.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*incident.Incident // incident ID -> incident
	active    map[string]string             // key -> incident ID while active
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[string]*incident.Incident),
		active:    make(map[string]string),
	}
}

// CreateIfAbsent inserts inc unless an active incident already holds its
// key. The active index and the insert are covered by one lock, so racing
// creators resolve to a single winner.
func (s *Store) CreateIfAbsent(_ context.Context, inc *incident.Incident) (bool, *incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[inc.Key]; ok {
		cp := clone(s.incidents[id])
		return false, cp, nil
	}
	cp := clone(inc)
	s.incidents[inc.ID] = cp
	s.active[inc.Key] = inc.ID
	return true, nil, nil
}

// Get retrieves an incident by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	return clone(inc), true, nil
}

// Update stores a copy of the incident and releases the key when the
// incident leaves the active states.
func (s *Store) Update(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = clone(inc)
	if inc.Status.Active() {
		s.active[inc.Key] = inc.ID
	} else if s.active[inc.Key] == inc.ID {
		delete(s.active, inc.Key)
	}
	return nil
}

// ListActive returns copies of all active incidents ordered by due time.
func (s *Store) ListActive(_ context.Context) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*incident.Incident
	for _, id := range s.active {
		out = append(out, clone(s.incidents[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func clone(inc *incident.Incident) *incident.Incident {
	cp := *inc
	cp.Transitions = append([]incident.Transition(nil), inc.Transitions...)
	return &cp
}
