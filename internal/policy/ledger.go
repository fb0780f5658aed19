package policy

import (
	"sync"
	"time"
)

// Ledger tracks the last successful dispatch per alert fingerprint, plus
// in-flight reservations so concurrent batches cannot double-dispatch the
// same fingerprint. Entries older than window*retention are evicted lazily
// on write so the map stays bounded without a background sweeper.
type Ledger struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	lastSent  map[string]time.Time
	inFlight  map[string]struct{}
	sweepAt   time.Time
}

// NewLedger creates a ledger with the given rate-limit window.
func NewLedger(window time.Duration, retentionMultiplier int) *Ledger {
	if retentionMultiplier < 1 {
		retentionMultiplier = 1
	}
	return &Ledger{
		window:    window,
		retention: window * time.Duration(retentionMultiplier),
		lastSent:  make(map[string]time.Time),
		inFlight:  make(map[string]struct{}),
	}
}

// Reserve atomically checks the rate-limit window and claims the
// fingerprint for an in-flight dispatch. It returns false when a dispatch
// inside the window already succeeded or another dispatch for the same
// fingerprint is still in flight. A successful reservation must be settled
// with Confirm or Release.
func (l *Ledger) Reserve(fingerprint string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inFlight[fingerprint]; busy {
		return false
	}
	if sent, ok := l.lastSent[fingerprint]; ok && now.Sub(sent) < l.window {
		return false
	}
	l.inFlight[fingerprint] = struct{}{}
	return true
}

// Confirm records a successful dispatch and clears the reservation.
func (l *Ledger) Confirm(fingerprint string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, fingerprint)
	l.lastSent[fingerprint] = now
	l.maybeSweep(now)
}

// Release drops the reservation without consuming the window, so a later
// retry can fire after a failed dispatch.
func (l *Ledger) Release(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, fingerprint)
}

// Len reports the number of tracked fingerprints.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSent)
}

// maybeSweep evicts stale entries at most once per window. Caller holds mu.
func (l *Ledger) maybeSweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	l.sweepAt = now.Add(l.window)
	for fp, sent := range l.lastSent {
		if now.Sub(sent) > l.retention {
			delete(l.lastSent, fp)
		}
	}
}
