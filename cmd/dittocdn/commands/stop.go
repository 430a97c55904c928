package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopForce   bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dittocdn server",
	Long: `Stop a dittocdn server started in background mode.

By default sends SIGTERM so queued work in flight finishes. Use --force
to terminate immediately with SIGKILL.

Examples:
  dittocdn stop
  dittocdn stop --pid-file /var/run/dittocdn.pid
  dittocdn stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittocdn/dittocdn.pid)")
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Force kill (SIGKILL) instead of graceful shutdown (SIGTERM)")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		return fmt.Errorf("PID file not found: %s\n\nIs the server running?", pidPath)
	}

	pid, running := isProcessRunning(pidPath)
	if !running {
		_ = os.Remove(pidPath)
		fmt.Println("Server already stopped")
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := signalStop(process, stopForce); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = os.Remove(pidPath)
			fmt.Println("Server already stopped")
			return nil
		}
		return fmt.Errorf("failed to send signal: %w", err)
	}

	if stopForce {
		fmt.Printf("Server terminated (PID %d)\n", pid)
	} else {
		fmt.Printf("Shutdown signal sent to PID %d. Server will stop gracefully.\n", pid)
	}
	return nil
}
