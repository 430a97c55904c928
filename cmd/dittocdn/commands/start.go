package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/marmos91/dittocdn/pkg/runtime"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dittocdn server",
	Long: `Start the dittocdn server: the REST API, the queue scheduler and,
when enabled, the uploads watcher, the rewriting proxy and the metrics
endpoint.

By default the server runs in the background (daemon mode). Use --foreground
to run it under a process supervisor or while debugging.

Examples:
  # Start in background
  dittocdn start

  # Start in foreground with a custom config
  dittocdn start --foreground --config /etc/dittocdn/config.yaml

  # Override settings from the environment
  DITTOCDN_LOGGING_LEVEL=DEBUG dittocdn start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittocdn/dittocdn.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/dittocdn/dittocdn.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittocdn",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittocdn",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()),
		"level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Enabled {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close runtime", logger.Err(err))
		}
	}()

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- rt.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}
	return nil
}
