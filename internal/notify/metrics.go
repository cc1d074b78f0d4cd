package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Dropped   prometheus.Counter
	Delivered *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ndaflow_notifications_dropped_total",
			Help: "Events dropped because the notification inbox was full",
		}),
		Delivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ndaflow_notifications_delivered_total",
			Help: "Per-recipient notification deliveries by result (ok, error, opted_out)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementDropped() {
	m.Dropped.Inc()
}

func (m *Metrics) AddDelivered(result string, n int) {
	if n > 0 {
		m.Delivered.WithLabelValues(result).Add(float64(n))
	}
}
