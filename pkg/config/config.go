package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/dittocdn/internal/bytesize"
	"github.com/marmos91/dittocdn/pkg/api"
	"github.com/marmos91/dittocdn/pkg/cdn/engine"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/jobs"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
	"github.com/marmos91/dittocdn/pkg/watch"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the dittocdn configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOCDN_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// DataDir hosts the embedded stores (SQLite file, badger queue).
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// Database holds the site catalog and, for the sql queue, the queue.
	Database database.Config `mapstructure:"database" yaml:"database"`

	Queue queue.Config `mapstructure:"queue" yaml:"queue"`

	Site site.Layout `mapstructure:"site" yaml:"site"`

	CDN CDNConfig `mapstructure:"cdn" yaml:"cdn"`

	Import jobs.ImportConfig `mapstructure:"import" yaml:"import"`

	API api.APIConfig `mapstructure:"api" yaml:"api"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	Watch watch.Config `mapstructure:"watch" yaml:"watch"`

	Proxy rewrite.ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
}

// CDNConfig selects the engine and controls URL rewriting.
type CDNConfig struct {
	// Enabled switches URL rewriting on. Transfers run either way.
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	engine.Config `mapstructure:",squash" yaml:",inline"`

	// Groups selects the rewritten file groups and their masks.
	Groups rewrite.Config `mapstructure:"groups" yaml:"groups"`

	// Reject lists requests that are never rewritten.
	Reject rewrite.PolicyConfig `mapstructure:"reject" yaml:"reject"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector (host:port).
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the sampled share of traces, 0.0 to 1.0.
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the collected profiles.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Values absent from the file keep their defaults, so boolean switches
// that default to true can still be turned off explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultTemplate()
	if configFileFound {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if !configFileFound {
		return cfg, nil
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration, explaining how to create it when missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittocdn config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittocdn <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittocdn config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML. The file may hold credentials, so it is
// readable by the owner only.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment overrides and the config file location.
// Example: DITTOCDN_LOGGING_LEVEL=DEBUG
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DITTOCDN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reports whether a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook accepts human sizes ("16MiB") and plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook accepts "30s", "5m", "1h"; raw integers are
// nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittocdn, or ~/.config/dittocdn.
func getConfigDir() string {
	return database.DefaultDir()
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether the default config file exists.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory.
func GetConfigDir() string {
	return getConfigDir()
}
