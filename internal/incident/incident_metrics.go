package incident

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the incident tracker.
type Metrics struct {
	OpenedTotal         *prometheus.CounterVec
	DedupedTotal        prometheus.Counter
	TransitionsTotal    *prometheus.CounterVec
	TicketFailuresTotal prometheus.Counter
	SLAViolationsTotal  prometheus.Counter
	ResolutionDuration  prometheus.Histogram
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_incidents_opened_total",
			Help: "Incidents opened, by priority band.",
		}, []string{"priority"}),
		DedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_incidents_deduped_total",
			Help: "Qualifying results absorbed by an existing active incident.",
		}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_incident_transitions_total",
			Help: "Incident lifecycle transitions.",
		}, []string{"from", "to"}),
		TicketFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_incident_ticket_failures_total",
			Help: "External ticket creations that returned an error.",
		}),
		SLAViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_incident_sla_violations_total",
			Help: "Incidents resolved or closed after their SLA deadline.",
		}),
		ResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klaxon_incident_resolution_duration_seconds",
			Help:    "Time from incident creation to leaving the active states.",
			Buckets: prometheus.ExponentialBuckets(60, 4, 10), // 1m .. ~18w
		}),
	}

	reg.MustRegister(
		m.OpenedTotal,
		m.DedupedTotal,
		m.TransitionsTotal,
		m.TicketFailuresTotal,
		m.SLAViolationsTotal,
		m.ResolutionDuration,
	)
	return m
}
