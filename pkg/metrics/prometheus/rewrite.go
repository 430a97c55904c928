package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

type rewriteMetrics struct {
	renders   prometheus.Histogram
	rewritten prometheus.Counter
	rejected  *prometheus.CounterVec
}

// NewRewriteMetrics creates a Prometheus-backed RewriteMetrics.
//
// Returns nil if metrics are not enabled.
func NewRewriteMetrics() metrics.RewriteMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &rewriteMetrics{
		renders: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dittocdn_rewrite_duration_milliseconds",
			Help:    "Duration of rewrite passes in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100},
		}),
		rewritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittocdn_rewrite_urls_total",
			Help: "URLs redirected to the CDN",
		}),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocdn_rewrite_rejected_total",
				Help: "Responses left untouched by the request policy",
			},
			[]string{"reason"},
		),
	}
}

func (m *rewriteMetrics) ObserveRender(duration time.Duration, rewritten int) {
	m.renders.Observe(duration.Seconds() * 1000)
	m.rewritten.Add(float64(rewritten))
}

func (m *rewriteMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}
