package policy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the alert policy engine.
type Metrics struct {
	BatchesTotal    prometheus.Counter
	ItemsTotal      prometheus.Counter
	DispatchedTotal prometheus.Counter
	SuppressedTotal prometheus.Counter
	FailedTotal     prometheus.Counter
	SummariesTotal  prometheus.Counter
	BatchSize       prometheus.Histogram
}

// NewMetrics registers and returns policy metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_batches_total",
			Help: "Batches evaluated by the alert policy engine.",
		}),
		ItemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_items_total",
			Help: "Scored results evaluated across all batches.",
		}),
		DispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_alerts_dispatched_total",
			Help: "Alert intents successfully delivered.",
		}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_alerts_suppressed_total",
			Help: "Immediate alerts suppressed by the dedup ledger.",
		}),
		FailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_dispatch_failures_total",
			Help: "Alert intents whose delivery returned an error.",
		}),
		SummariesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_policy_batch_summaries_total",
			Help: "Batch summary notifications emitted.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klaxon_policy_batch_size",
			Help:    "Distribution of policy batch sizes.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		}),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.ItemsTotal,
		m.DispatchedTotal,
		m.SuppressedTotal,
		m.FailedTotal,
		m.SummariesTotal,
		m.BatchSize,
	)
	return m
}

func (m *Metrics) observeBatch(stats *Stats) {
	m.BatchesTotal.Inc()
	m.ItemsTotal.Add(float64(stats.Total))
	m.DispatchedTotal.Add(float64(stats.Dispatched))
	m.SuppressedTotal.Add(float64(stats.Suppressed))
	m.FailedTotal.Add(float64(stats.FailedDispatch))
	m.BatchSize.Observe(float64(stats.Total))
	if stats.BatchSummary {
		m.SummariesTotal.Inc()
	}
}
