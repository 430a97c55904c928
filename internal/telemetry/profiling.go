package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL (e.g., "http://localhost:4040")
	Endpoint string

	// ProfileTypes lists the profiles to collect: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration.
	ProfileTypes []string
}

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// ParseProfileTypes validates names against the supported profile types.
func ParseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	out := make([]pyroscope.ProfileType, 0, len(names))
	for _, name := range names {
		pt, ok := profileTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile type: %s", name)
		}
		out = append(out, pt)
	}
	return out, nil
}

// InitProfiling starts the Pyroscope profiler. The returned function stops it.
func InitProfiling(cfg ProfilingConfig) (stop func() error, err error) {
	if !cfg.Enabled {
		return func() error { return nil }, nil
	}

	types, err := ParseProfileTypes(cfg.ProfileTypes)
	if err != nil {
		return nil, err
	}

	for _, name := range cfg.ProfileTypes {
		switch name {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            map[string]string{"version": cfg.ServiceVersion},
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	return profiler.Stop, nil
}
