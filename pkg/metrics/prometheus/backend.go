package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

type backendMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	failures   *prometheus.CounterVec
}

// NewBackendMetrics creates a Prometheus-backed BackendMetrics.
//
// Returns nil if metrics are not enabled.
func NewBackendMetrics() metrics.BackendMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &backendMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocdn_backend_operations_total",
				Help: "Engine operations by engine and operation",
			},
			[]string{"engine", "operation"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocdn_backend_operation_duration_milliseconds",
				Help:    "Duration of engine operations in milliseconds",
				Buckets: durationBuckets,
			},
			[]string{"engine", "operation"},
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocdn_backend_failed_items_total",
				Help: "Items that did not succeed, by engine and operation",
			},
			[]string{"engine", "operation"},
		),
	}
}

func (m *backendMetrics) ObserveOperation(engine, op string, duration time.Duration, failed int) {
	m.operations.WithLabelValues(engine, op).Inc()
	m.duration.WithLabelValues(engine, op).Observe(duration.Seconds() * 1000)
	if failed > 0 {
		m.failures.WithLabelValues(engine, op).Add(float64(failed))
	}
}
