// Package prometheus implements the pkg/metrics interfaces with Prometheus
// collectors registered on metrics.GetRegistry().
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

// durationBuckets are shared by every millisecond histogram.
var durationBuckets = []float64{
	10,    // 10ms - local or cached
	50,    // 50ms
	100,   // 100ms
	500,   // 500ms
	1000,  // 1s - typical batch
	5000,  // 5s
	30000, // 30s - large uploads
	60000, // 1m
}

type transferMetrics struct {
	results       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	halts         *prometheus.CounterVec
}

// NewTransferMetrics creates a Prometheus-backed TransferMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTransferMetrics() metrics.TransferMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &transferMetrics{
		results: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocdn_transfer_results_total",
				Help: "Per-file transfer results by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		batchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocdn_transfer_batch_duration_milliseconds",
				Help:    "Duration of backend batches in milliseconds",
				Buckets: durationBuckets,
			},
			[]string{"command"},
		),
		batchSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocdn_transfer_batch_files",
				Help:    "Number of files per backend batch",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"command"},
		),
		halts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocdn_transfer_halts_total",
				Help: "Command groups that halted on a session failure",
			},
			[]string{"command"},
		),
	}
}

func (m *transferMetrics) RecordResult(command, outcome string) {
	m.results.WithLabelValues(command, outcome).Inc()
}

func (m *transferMetrics) ObserveBatch(command string, files int, duration time.Duration) {
	m.batchDuration.WithLabelValues(command).Observe(duration.Seconds() * 1000)
	m.batchSize.WithLabelValues(command).Observe(float64(files))
}

func (m *transferMetrics) RecordHalt(command string) {
	m.halts.WithLabelValues(command).Inc()
}
