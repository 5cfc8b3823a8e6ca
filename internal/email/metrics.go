package email

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Pending      prometheus.Gauge
	Outcomes     *prometheus.CounterVec
	SendDuration prometheus.Histogram
}

// NewMetrics registers the queue metrics on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "corpdesk_email_queue_pending",
			Help: "Jobs waiting in the email queue, including the one in flight",
		}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpdesk_email_outcomes_total",
			Help: "Email queue outcomes",
		}, []string{"outcome"}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "corpdesk_email_send_duration_seconds",
			Help:    "Latency of transport send attempts",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) record(o Outcome, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Outcomes.WithLabelValues(string(o)).Add(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *Metrics) observeSend(seconds float64) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(seconds)
}
