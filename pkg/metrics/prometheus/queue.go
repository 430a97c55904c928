package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

type queueMetrics struct {
	depth *prometheus.GaugeVec
}

// NewQueueMetrics creates a Prometheus-backed QueueMetrics.
//
// Returns nil if metrics are not enabled.
func NewQueueMetrics() metrics.QueueMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return &queueMetrics{
		depth: promauto.With(metrics.GetRegistry()).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittocdn_queue_depth",
				Help: "Queued transfer entries by command",
			},
			[]string{"command"},
		),
	}
}

func (m *queueMetrics) SetDepth(command string, n int) {
	m.depth.WithLabelValues(command).Set(float64(n))
}
