package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for decisions.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFallback = "fallback_policy"
	OutcomeError    = "store_error"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	Degraded       prometheus.Counter
	SweptKeys      prometheus.Counter
	CheckDurations prometheus.Histogram
}

// New registers the rate limit metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpdesk_ratelimit_decisions_total",
			Help: "Rate limit decisions by category and outcome",
		}, []string{"category", "outcome"}),
		Degraded: f.NewCounter(prometheus.CounterOpts{
			Name: "corpdesk_ratelimit_degraded_total",
			Help: "Checks served by the in-memory fallback store",
		}),
		SweptKeys: f.NewCounter(prometheus.CounterOpts{
			Name: "corpdesk_ratelimit_swept_keys_total",
			Help: "Identifiers removed by the periodic sweep",
		}),
		CheckDurations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "corpdesk_ratelimit_check_duration_seconds",
			Help:    "Latency of rate limit checks",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
	}
}

func (m *Metrics) RecordDecision(category, outcome string) {
	m.Decisions.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) IncrementDegraded() {
	m.Degraded.Inc()
}

func (m *Metrics) AddSwept(n int) {
	m.SweptKeys.Add(float64(n))
}

func (m *Metrics) ObserveCheck(seconds float64) {
	m.CheckDurations.Observe(seconds)
}
