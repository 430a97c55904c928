package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittocdn/pkg/cdn/engine"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/transfer"
	"github.com/marmos91/dittocdn/pkg/watch"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced, explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = getConfigDir()
	}
	applyDatabaseDefaults(cfg)
	cfg.Queue.ApplyDefaults(cfg.DataDir)
	cfg.Site.ApplyDefaults()
	applyCDNDefaults(cfg)
	cfg.Import.ApplyDefaults()
	cfg.API.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = watch.DefaultDebounce
	}
	applyProxyDefaults(&cfg.Proxy)
}

// applyLoggingDefaults sets logging defaults and normalizes the level to
// uppercase.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyDatabaseDefaults keeps the SQLite file next to the other local data.
func applyDatabaseDefaults(cfg *Config) {
	if cfg.Database.Type == "" {
		cfg.Database.Type = database.TypeSQLite
	}
	if cfg.Database.Type == database.TypeSQLite && cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = filepath.Join(cfg.DataDir, "dittocdn.db")
	}
	cfg.Database.ApplyDefaults()
}

// applyCDNDefaults fills masks and hands the shared switches to the
// request policy.
func applyCDNDefaults(cfg *Config) {
	if cfg.CDN.Engine == "" {
		cfg.CDN.Engine = engine.Mirror
	}
	cfg.CDN.Engine = strings.ToLower(cfg.CDN.Engine)
	cfg.CDN.Groups.ApplyDefaults()
	cfg.CDN.Reject.Enabled = cfg.CDN.Enabled
	cfg.CDN.Reject.AdminPath = cfg.Site.AdminPath
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyProxyDefaults(cfg *rewrite.ProxyConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":8081"
	}
	if cfg.MaxBody == 0 {
		cfg.MaxBody = rewrite.DefaultMaxBody
	}
}

// defaultTemplate holds the defaults that zero values cannot express.
// Load decodes the file over it.
func defaultTemplate() *Config {
	return &Config{
		Queue: queue.Config{Interval: transfer.DefaultInterval},
		CDN: CDNConfig{
			Enabled: true,
			Config:  engine.Config{Engine: engine.Mirror},
			Groups: rewrite.Config{
				Uploads:  true,
				Includes: true,
				Theme:    true,
				Minify:   true,
				Custom:   true,
			},
		},
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := defaultTemplate()
	ApplyDefaults(cfg)
	return cfg
}
