package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the delivery queue and worker.
type Metrics struct {
	Enqueued       prometheus.Counter
	Outcomes       *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	Recovered      prometheus.Counter
	AttemptLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_delivery_jobs_enqueued_total",
			Help: "Delivery jobs accepted into the queue",
		}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_delivery_attempts_total",
			Help: "Delivery attempts by outcome (sent, retry, failed)",
		}, []string{"outcome"}),
		Escalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_delivery_escalations_total",
			Help: "Failure escalations by result (sent, skipped, error)",
		}, []string{"result"}),
		Recovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_delivery_stale_claims_recovered_total",
			Help: "SENDING jobs reclaimed after their claim timed out",
		}),
		AttemptLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndaflow_delivery_attempt_duration_seconds",
			Help:    "Duration of one send attempt including render and transport",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementEnqueued() {
	m.Enqueued.Inc()
}

func (m *Metrics) IncrementOutcome(outcome string) {
	m.Outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementEscalation(result string) {
	m.Escalations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementRecovered() {
	m.Recovered.Inc()
}

func (m *Metrics) ObserveAttempt(start time.Time) {
	m.AttemptLatency.Observe(time.Since(start).Seconds())
}
