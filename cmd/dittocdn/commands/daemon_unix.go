//go:build !windows

package commands

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// isProcessRunning reads a PID from pidPath and reports whether that
// process is alive.
func isProcessRunning(pidPath string) (int, bool) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}

	var pid int
	if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

// startDaemon re-executes the binary in foreground mode, detached from the
// terminal, with its output appended to the log file.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pid, running := isProcessRunning(pidPath); running {
		return fmt.Errorf("dittocdn is already running (PID %d)\nUse 'dittocdn stop' to stop the running instance", pid)
	}
	_ = os.Remove(pidPath)

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}
	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFileHandle.Close() }()

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("dittocdn started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'dittocdn stop' to stop the server")
	fmt.Println("Use 'dittocdn status' to check server status")
	return nil
}

// signalStop asks the process to exit, SIGKILL when force is set.
func signalStop(process *os.Process, force bool) error {
	if force {
		return process.Signal(syscall.SIGKILL)
	}
	return process.Signal(syscall.SIGTERM)
}
