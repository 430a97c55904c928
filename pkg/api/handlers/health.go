package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/transfer"
)

// Response wraps health payloads.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	backend   cdn.Backend
	scheduler *transfer.Scheduler
	startTime time.Time
}

// NewHealthHandler creates a health handler. scheduler may be nil.
func NewHealthHandler(backend cdn.Backend, scheduler *transfer.Scheduler) *HealthHandler {
	return &HealthHandler{backend: backend, scheduler: scheduler, startTime: time.Now()}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	data := map[string]any{
		"service":    "dittocdn",
		"engine":     cdn.EngineName(h.backend),
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}
	if h.scheduler != nil {
		data["scheduler"] = h.scheduler.Stats()
	}
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
