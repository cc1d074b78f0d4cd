package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the status transition engine.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	RejectedTransition *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
	Expired            prometheus.Counter
}

// New creates and registers the agreement metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_agreement_transitions_total",
			Help: "Status changes written, by trigger and destination status",
		}, []string{"trigger", "to"}),
		RejectedTransition: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_agreement_transitions_rejected_total",
			Help: "Manual status changes rejected, by reason",
		}, []string{"reason"}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ndaflow_agreement_transition_duration_seconds",
			Help:    "Duration of a status change unit of work",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_agreements_expired_total",
			Help: "Agreements moved to EXPIRED by the expiration sweep",
		}),
	}
}

func (m *Metrics) IncrementTransition(trigger, to string) {
	m.Transitions.WithLabelValues(trigger, to).Inc()
}

// IncrementRejected records a rejected change; reason is an error code.
func (m *Metrics) IncrementRejected(reason string) {
	m.RejectedTransition.WithLabelValues(reason).Inc()
}

// ObserveTransition records the duration since start.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddExpired(n int) {
	m.Expired.Add(float64(n))
}
