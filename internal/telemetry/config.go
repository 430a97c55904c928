package telemetry

// Config holds OpenTelemetry tracing configuration
type Config struct {
	// Enabled turns on span export. When false a no-op tracer is used.
	Enabled bool

	// ServiceName is reported as service.name
	ServiceName string

	// ServiceVersion is reported as service.version
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// SampleRate is the trace sampling ratio between 0.0 and 1.0
	SampleRate float64
}

// DefaultConfig returns tracing disabled with local collector defaults
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "dittocdn",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
