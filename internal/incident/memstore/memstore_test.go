package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/klaxon/internal/incident"
	"github.com/linnemanlabs/klaxon/internal/incident/memstore"
)

func sample(id, key string, due time.Time) *incident.Incident {
	now := due.Add(-time.Hour)
	return &incident.Incident{
		ID:        id,
		Key:       key,
		Category:  "Security Alert",
		Source:    "auth-svc",
		Severity:  9,
		Priority:  incident.PriorityHighest,
		Status:    incident.StatusOpen,
		Summary:   "failed login storm",
		CreatedAt: now,
		UpdatedAt: now,
		DueAt:     due,
	}
}

func TestCreateIfAbsentAndGet(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	due := time.Now().Add(time.Hour).UTC()

	created, _, err := s.CreateIfAbsent(ctx, sample("inc-1", "k1", due))
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !created {
		t.Fatal("first create should win")
	}

	created, existing, err := s.CreateIfAbsent(ctx, sample("inc-2", "k1", due))
	if err != nil {
		t.Fatalf("CreateIfAbsent duplicate: %v", err)
	}
	if created {
		t.Fatal("duplicate active key must not create")
	}
	if existing == nil || existing.ID != "inc-1" {
		t.Fatalf("existing = %+v, want inc-1", existing)
	}

	got, ok, err := s.Get(ctx, "inc-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}

	// Mutating the returned copy must not leak into the store.
	got.Summary = "mutated"
	again, _, _ := s.Get(ctx, "inc-1")
	if again.Summary == "mutated" {
		t.Error("Get returned a shared reference")
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for missing ID")
	}
}

func TestUpdateReleasesKey(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	due := time.Now().Add(time.Hour).UTC()

	inc := sample("inc-1", "k1", due)
	if _, _, err := s.CreateIfAbsent(ctx, inc); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}

	inc.Status = incident.StatusResolved
	if err := s.Update(ctx, inc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	created, _, err := s.CreateIfAbsent(ctx, sample("inc-2", "k1", due))
	if err != nil {
		t.Fatalf("CreateIfAbsent after resolve: %v", err)
	}
	if !created {
		t.Error("resolved incident should release its key")
	}
}

func TestListActiveOrdersByDue(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	base := time.Now().UTC()

	for _, in := range []*incident.Incident{
		sample("inc-late", "k-late", base.Add(3*time.Hour)),
		sample("inc-soon", "k-soon", base.Add(time.Hour)),
		sample("inc-mid", "k-mid", base.Add(2*time.Hour)),
	} {
		if _, _, err := s.CreateIfAbsent(ctx, in); err != nil {
			t.Fatalf("CreateIfAbsent %s: %v", in.ID, err)
		}
	}

	resolved := sample("inc-done", "k-done", base.Add(30*time.Minute))
	if _, _, err := s.CreateIfAbsent(ctx, resolved); err != nil {
		t.Fatalf("CreateIfAbsent resolved: %v", err)
	}
	resolved.Status = incident.StatusClosed
	if err := s.Update(ctx, resolved); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("active = %d, want 3", len(active))
	}
	want := []string{"inc-soon", "inc-mid", "inc-late"}
	for i, id := range want {
		if active[i].ID != id {
			t.Errorf("active[%d] = %s, want %s", i, active[i].ID, id)
		}
	}
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	due := time.Now().Add(time.Hour).UTC()

	const racers = 32
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			inc := sample(fmt.Sprintf("inc-%d", i), "shared", due)
			created, _, err := s.CreateIfAbsent(context.Background(), inc)
			if err != nil {
				t.Errorf("CreateIfAbsent: %v", err)
				return
			}
			if created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}
