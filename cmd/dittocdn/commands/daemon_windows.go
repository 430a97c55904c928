//go:build windows

package commands

import (
	"errors"
	"fmt"
	"os"
)

var errNoDaemon = errors.New("background mode is not supported on Windows, use --foreground")

func isProcessRunning(pidPath string) (int, bool) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}
	var pid int
	if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err != nil {
		return 0, false
	}
	// FindProcess opens a handle on Windows, so it fails for dead PIDs.
	if _, err := os.FindProcess(pid); err != nil {
		return 0, false
	}
	return pid, true
}

func startDaemon() error {
	return errNoDaemon
}

func signalStop(process *os.Process, _ bool) error {
	return process.Kill()
}
