package handlers

import (
	"errors"
	"net/http"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/cdn/engine"
)

// BackendHandler exposes the configured CDN engine.
type BackendHandler struct {
	backend cdn.Backend
}

// NewBackendHandler creates a new BackendHandler.
func NewBackendHandler(backend cdn.Backend) *BackendHandler {
	return &BackendHandler{backend: backend}
}

// BackendResponse describes the engine.
type BackendResponse struct {
	Engine  string   `json:"engine"`
	Via     string   `json:"via"`
	Domains []string `json:"domains"`
}

// Get handles GET /api/v1/backend.
func (h *BackendHandler) Get(w http.ResponseWriter, r *http.Request) {
	domains := h.backend.Domains()
	if domains == nil {
		domains = []string{}
	}
	WriteJSONOK(w, BackendResponse{
		Engine:  cdn.EngineName(h.backend),
		Via:     h.backend.Via(),
		Domains: domains,
	})
}

// Test handles POST /api/v1/backend/test. Configuration errors are the
// caller's to fix (422); anything else is the CDN failing (502).
func (h *BackendHandler) Test(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Test(r.Context()); err != nil {
		logger.WarnCtx(r.Context(), "CDN test failed", logger.Err(err))
		var verr *cdn.ValidationError
		if errors.As(err, &verr) {
			UnprocessableEntity(w, err.Error(), nil)
			return
		}
		BadGateway(w, err.Error())
		return
	}
	WriteJSONOK(w, map[string]string{"status": "ok", "message": "Test passed"})
}

// Create handles POST /api/v1/backend/container.
func (h *BackendHandler) Create(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.backend.(cdn.ContainerCreator)
	if !ok {
		UnprocessableEntity(w, "engine does not support container creation", nil)
		return
	}
	if err := cc.CreateContainer(r.Context()); err != nil {
		var verr *cdn.ValidationError
		if errors.As(err, &verr) || errors.Is(err, engine.ErrNoContainer) {
			UnprocessableEntity(w, err.Error(), nil)
			return
		}
		BadGateway(w, err.Error())
		return
	}
	WriteJSONCreated(w, map[string]string{"status": "ok", "message": "Created successfully"})
}
