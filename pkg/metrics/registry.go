// Package metrics holds the metric interfaces used across dittocdn and the
// process-wide Prometheus registry.
//
// Every consumer accepts a nil interface value, which disables recording at
// zero cost. Concrete implementations live in pkg/metrics/prometheus and
// return nil unless InitRegistry has been called.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection with a fresh registry carrying the
// Go runtime and process collectors. Calling it again replaces the registry.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mu.Lock()
	registry = reg
	mu.Unlock()
	return reg
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil when disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset disables metrics collection. Used by tests.
func Reset() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}

// Handler serves the active registry in the Prometheus exposition format.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
