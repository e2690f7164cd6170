package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "store_transfer"

// Prometheus implements port.Metrics on its own registry.
type Prometheus struct {
	registry       *prometheus.Registry
	transitions    *prometheus.CounterVec
	errors         *prometheus.CounterVec
	reconciliation *prometheus.HistogramVec
	notifications  *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_transitions_total",
			Help:      "Committed transfer status changes.",
		}, []string{"from", "to"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed operations by error kind.",
		}, []string{"operation", "kind"}),
		reconciliation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_duration_seconds",
			Help:      "Time spent moving stock for received transfers.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Event deliveries per sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.errors,
		m.reconciliation,
		m.notifications,
	)
	return m
}

func (m *Prometheus) ObserveTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Prometheus) ObserveError(operation, kind string) {
	m.errors.WithLabelValues(operation, kind).Inc()
}

func (m *Prometheus) ObserveReconciliation(elapsed time.Duration, outcome string) {
	m.reconciliation.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Prometheus) ObserveNotification(sink, outcome string) {
	m.notifications.WithLabelValues(sink, outcome).Inc()
}

func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
