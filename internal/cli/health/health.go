// Package health reads the liveness endpoint of a running server.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response is the body of GET /health.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      Data      `json:"data"`
	Error     string    `json:"error,omitempty"`
}

// Data carries the server details.
type Data struct {
	Service   string     `json:"service"`
	Engine    string     `json:"engine"`
	StartedAt string     `json:"started_at"`
	Uptime    string     `json:"uptime"`
	UptimeSec int64      `json:"uptime_sec"`
	Scheduler *Scheduler `json:"scheduler,omitempty"`
}

// Scheduler mirrors the background processor counters.
type Scheduler struct {
	Runs      int       `json:"runs"`
	Processed int       `json:"processed"`
	Halts     int       `json:"halts"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Healthy reports whether the server said so.
func (r *Response) Healthy() bool {
	return r.Status == "healthy"
}

// Check fetches baseURL/health.
func Check(ctx context.Context, baseURL string, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid health response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}
