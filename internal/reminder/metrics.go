package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs        *prometheus.CounterVec
	Candidates  *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpdesk_reminder_runs_total",
			Help: "Reminder scans by result",
		}, []string{"result"}),
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpdesk_reminder_candidates_total",
			Help: "Reminder candidates by outcome and deadline type",
		}, []string{"deadline_type", "outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "corpdesk_reminder_run_duration_seconds",
			Help:    "Duration of a reminder scan",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
