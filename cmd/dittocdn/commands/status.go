package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittocdn/internal/cli/health"
	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	statusPidFile string
	statusAPIPort int
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the status of the dittocdn server.

Checks the PID file and the API health endpoint, then shows uptime, the
CDN engine and the queue scheduler counters.

Examples:
  dittocdn status
  dittocdn status --api-port 9080
  dittocdn status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittocdn/dittocdn.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "Health check timeout")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running   bool              `json:"running" yaml:"running"`
	PID       int               `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy   bool              `json:"healthy" yaml:"healthy"`
	Message   string            `json:"message" yaml:"message"`
	Engine    string            `json:"engine,omitempty" yaml:"engine,omitempty"`
	StartedAt string            `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string            `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Scheduler *health.Scheduler `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := newPrinter()
	if err != nil {
		return err
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	status := ServerStatus{Message: "Server is not running"}
	if pid, running := isProcessRunning(pidPath); running {
		status.Running = true
		status.PID = pid
	}

	baseURL := fmt.Sprintf("http://localhost:%d", statusAPIPort)
	resp, err := health.Check(context.Background(), baseURL, statusTimeout)
	switch {
	case err == nil:
		status.Running = true
		status.Healthy = resp.Healthy()
		status.Engine = resp.Data.Engine
		status.StartedAt = resp.Data.StartedAt
		status.Uptime = resp.Data.Uptime
		status.Scheduler = resp.Data.Scheduler
		if status.Healthy {
			status.Message = "Server is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Server is running but unhealthy: %s", resp.Error)
		}
	case status.Running:
		status.Message = fmt.Sprintf("Server process exists but health check failed: %v", err)
	}

	if p.Structured() {
		return p.Print(status)
	}
	printStatusTable(p, status)
	return nil
}

func printStatusTable(p *output.Printer, status ServerStatus) {
	p.Println()
	p.Println("dittocdn Server Status")
	p.Println("======================")
	p.Println()

	pairs := [][2]string{}
	if status.Running {
		state := "running"
		if !status.Healthy {
			state = "running (unhealthy)"
		}
		pairs = append(pairs, [2]string{"Status", state})
		if status.PID != 0 {
			pairs = append(pairs, [2]string{"PID", fmt.Sprintf("%d", status.PID)})
		}
		if status.Engine != "" {
			pairs = append(pairs, [2]string{"Engine", status.Engine})
		}
		if t, err := time.Parse(time.RFC3339, status.StartedAt); err == nil {
			pairs = append(pairs, [2]string{"Started", humanize.Time(t)})
		}
		if status.Uptime != "" {
			pairs = append(pairs, [2]string{"Uptime", status.Uptime})
		}
		if s := status.Scheduler; s != nil {
			pairs = append(pairs,
				[2]string{"Queue runs", humanize.Comma(int64(s.Runs))},
				[2]string{"Processed", humanize.Comma(int64(s.Processed))},
				[2]string{"Halts", humanize.Comma(int64(s.Halts))},
			)
			if !s.LastRun.IsZero() {
				pairs = append(pairs, [2]string{"Last run", humanize.Time(s.LastRun)})
			}
			if s.LastError != "" {
				pairs = append(pairs, [2]string{"Last error", s.LastError})
			}
		}
	} else {
		pairs = append(pairs, [2]string{"Status", "stopped"})
	}
	_ = output.KeyValues(p.Writer(), pairs)

	p.Println()
	if status.Healthy {
		p.Success(status.Message)
	} else if status.Running {
		p.Warning(status.Message)
	} else {
		p.Error(status.Message)
	}
}
