package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/marmos91/dittocdn/pkg/runtime"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default state directory path.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "dittocdn")
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "dittocdn")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "dittocdn.pid")
}

// GetDefaultLogFile returns the default log file path for daemon mode.
func GetDefaultLogFile() string {
	return filepath.Join(GetDefaultStateDir(), "dittocdn.log")
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

func newPrinter() (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	if w := rootCmd.OutOrStdout(); w != os.Stdout {
		return output.NewPrinter(w, format, false), nil
	}
	return output.StdoutPrinter(format), nil
}

// openRuntime loads the configuration and opens the stores and backend for
// a one-shot command. Callers must Close the runtime.
func openRuntime(ctx context.Context) (*runtime.Runtime, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	// One-shot commands never serve /metrics, and stdout carries their
	// output.
	cfg.Metrics.Enabled = false
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}
	return rt, nil
}

// withRuntime runs fn against a freshly opened runtime and closes it.
func withRuntime(ctx context.Context, fn func(*runtime.Runtime, *output.Printer) error) error {
	p, err := newPrinter()
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Warn("Failed to close runtime", logger.Err(cerr))
		}
	}()
	return fn(rt, p)
}
