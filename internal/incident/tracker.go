package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/klaxon/internal/classify"
	"github.com/linnemanlabs/klaxon/internal/notify"
	"github.com/linnemanlabs/klaxon/internal/policy"
)

// Ticketer files an external ticket for a newly opened incident and returns
// the external reference.
type Ticketer interface {
	CreateTicket(ctx context.Context, inc *Incident) (string, error)
}

// Config tunes incident qualification. Zero values fall back to defaults.
type Config struct {
	// SeverityFloor opens an incident regardless of category.
	SeverityFloor int
	// EscalatedFloor opens an incident for escalated categories.
	EscalatedFloor int
	// SLA overrides the resolution deadline per priority. Priorities
	// absent from the map keep the built-in budget.
	SLA map[Priority]time.Duration
}

func (c Config) slaFor(p Priority) time.Duration {
	if d, ok := c.SLA[p]; ok && d > 0 {
		return d
	}
	return p.SLA()
}

func (c Config) withDefaults() Config {
	if c.SeverityFloor == 0 {
		c.SeverityFloor = 9
	}
	if c.EscalatedFloor == 0 {
		c.EscalatedFloor = 8
	}
	return c
}

// escalatedCategories qualify for incident creation one severity point
// below the general floor.
var escalatedCategories = map[classify.Category]bool{
	classify.SecurityAlert: true,
	classify.CriticalError: true,
}

// Tracker owns the incident lifecycle: qualification, at-most-once creation
// per active key, external ticket filing, and status transitions.
type Tracker struct {
	cfg      Config
	store    Store
	ticketer Ticketer
	notifier notify.Notifier
	logger   log.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewTracker creates a tracker. ticketer and notifier may be nil; creation
// then skips the corresponding side effect.
func NewTracker(cfg Config, store Store, ticketer Ticketer, notifier notify.Notifier, logger log.Logger, metrics *Metrics) *Tracker {
	if logger == nil {
		logger = log.Nop()
	}
	return &Tracker{
		cfg:      cfg.withDefaults(),
		store:    store,
		ticketer: ticketer,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Qualifies reports whether a scored result warrants an incident.
func (t *Tracker) Qualifies(category classify.Category, severity int) bool {
	if severity >= t.cfg.SeverityFloor {
		return true
	}
	return escalatedCategories[category] && severity >= t.cfg.EscalatedFloor
}

// Observe evaluates one scored result. When the result qualifies and no
// active incident holds the key, a new incident is opened, a ticket is
// filed, and the incident channel is notified. The returned incident is the
// winner of the key, whether or not this call created it; created reports
// which case occurred.
func (t *Tracker) Observe(ctx context.Context, res classify.Result, severity int) (inc *Incident, created bool, err error) {
	if !t.Qualifies(res.Category, severity) {
		return nil, false, nil
	}

	now := t.now().UTC()
	priority := PriorityForSeverity(severity)
	candidate := &Incident{
		ID:        ulid.Make().String(),
		Key:       policy.Fingerprint(res.Category, res.Record.Source),
		Category:  string(res.Category),
		Source:    res.Record.Source,
		Severity:  severity,
		Priority:  priority,
		Status:    StatusOpen,
		Summary:   res.Record.Message,
		CreatedAt: now,
		UpdatedAt: now,
		DueAt:     now.Add(t.cfg.slaFor(priority)),
	}

	created, existing, err := t.store.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("create incident: %w", err)
	}
	if !created {
		if t.metrics != nil {
			t.metrics.DedupedTotal.Inc()
		}
		return existing, false, nil
	}

	if t.metrics != nil {
		t.metrics.OpenedTotal.WithLabelValues(string(priority)).Inc()
	}
	t.logger.Info(ctx, "incident opened",
		"incident_id", candidate.ID,
		"key", candidate.Key,
		"priority", string(priority),
		"due_at", candidate.DueAt.Format(time.RFC3339),
	)

	t.fileTicket(ctx, candidate)
	t.announce(ctx, candidate)
	return candidate, true, nil
}

// fileTicket files the external ticket and persists the reference. A ticket
// failure leaves the incident open without a reference; it is logged, not
// returned, so the incident itself survives a ticketing outage.
func (t *Tracker) fileTicket(ctx context.Context, inc *Incident) {
	if t.ticketer == nil {
		return
	}
	ticketID, err := t.ticketer.CreateTicket(ctx, inc)
	if err != nil {
		if t.metrics != nil {
			t.metrics.TicketFailuresTotal.Inc()
		}
		t.logger.Error(ctx, err, "ticket creation failed", "incident_id", inc.ID)
		return
	}
	inc.TicketID = ticketID
	inc.UpdatedAt = t.now().UTC()
	if err := t.store.Update(ctx, inc); err != nil {
		t.logger.Error(ctx, err, "persist ticket reference failed", "incident_id", inc.ID)
	}
}

func (t *Tracker) announce(ctx context.Context, inc *Incident) {
	if t.notifier == nil {
		return
	}
	intent := &notify.Intent{
		Kind:        notify.KindImmediate,
		Channel:     notify.ChannelIncident,
		Category:    classify.Category(inc.Category),
		Severity:    inc.Severity,
		Source:      inc.Source,
		Fingerprint: inc.Key,
		Summary:     fmt.Sprintf("Incident %s opened (%s, due %s): %s", inc.ID, inc.Priority, inc.DueAt.Format(time.RFC3339), inc.Summary),
		CreatedAt:   t.now(),
	}
	if err := t.notifier.Send(ctx, intent); err != nil {
		t.logger.Error(ctx, err, "incident notification failed", "incident_id", inc.ID)
	}
}

// Get retrieves an incident by ID.
func (t *Tracker) Get(ctx context.Context, id string) (*Incident, bool, error) {
	return t.store.Get(ctx, id)
}

// Transition moves an incident forward in its lifecycle and records the
// step. Backwards moves return *ErrBadTransition.
func (t *Tracker) Transition(ctx context.Context, id string, to Status, note string) (*Incident, error) {
	inc, ok, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if !inc.Status.CanTransition(to) {
		return nil, &ErrBadTransition{From: inc.Status, To: to}
	}

	now := t.now().UTC()
	inc.Transitions = append(inc.Transitions, Transition{
		From: inc.Status,
		To:   to,
		Note: note,
		At:   now,
	})
	from := inc.Status
	inc.Status = to
	inc.UpdatedAt = now
	if err := t.store.Update(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	if t.metrics != nil {
		t.metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
		if !to.Active() {
			t.metrics.ResolutionDuration.Observe(now.Sub(inc.CreatedAt).Seconds())
			if now.After(inc.DueAt) {
				t.metrics.SLAViolationsTotal.Inc()
			}
		}
	}
	t.logger.Info(ctx, "incident transitioned",
		"incident_id", inc.ID,
		"from", string(from),
		"to", string(to),
	)
	return inc, nil
}

// ListEscalating returns active incidents that are nearing or past their
// SLA deadline.
func (t *Tracker) ListEscalating(ctx context.Context) ([]*Incident, error) {
	active, err := t.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := t.now()
	var out []*Incident
	for _, inc := range active {
		if inc.NearingEscalation(now) {
			out = append(out, inc)
		}
	}
	return out, nil
}

// ListActive returns every active incident ordered by due time.
func (t *Tracker) ListActive(ctx context.Context) ([]*Incident, error) {
	return t.store.ListActive(ctx)
}
