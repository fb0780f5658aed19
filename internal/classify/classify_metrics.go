package classify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the classification cascade.
type Metrics struct {
	ResultsTotal   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	FallbacksTotal *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns cascade metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_classifications_total",
			Help: "Terminal classifications by deciding stage and category.",
		}, []string{"stage", "category"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "klaxon_classifier_stage_duration_seconds",
			Help:    "Duration of individual classifier stage invocations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us .. ~26s
		}, []string{"stage"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_classifier_fallbacks_total",
			Help: "Stage no-result fall-throughs to the next cascade stage.",
		}, []string{"stage"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_classifier_failures_total",
			Help: "Stage errors absorbed by the cascade coordinator.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.ResultsTotal,
		m.StageDuration,
		m.FallbacksTotal,
		m.FailuresTotal,
	)
	return m
}

// Hooks returns CascadeHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() CascadeHooks {
	return CascadeHooks{
		OnStage: func(stage Stage, category Category, duration time.Duration) {
			m.ResultsTotal.WithLabelValues(string(stage), string(category)).Inc()
			m.StageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
		},
		OnFallback: func(from Stage) {
			m.FallbacksTotal.WithLabelValues(string(from)).Inc()
		},
		OnFailure: func(stage Stage) {
			m.FailuresTotal.WithLabelValues(string(stage)).Inc()
		},
	}
}
