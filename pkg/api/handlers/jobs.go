package handlers

import (
	"net/http"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/jobs"
)

// JobsHandler drives the paged bulk jobs. The client keeps the offset and
// calls again until offset reaches total.
type JobsHandler struct {
	runner  *jobs.Runner
	backend cdn.Backend
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(runner *jobs.Runner, backend cdn.Backend) *JobsHandler {
	return &JobsHandler{runner: runner, backend: backend}
}

// ExportRequest is the body of POST /api/v1/jobs/export. With Files set,
// that list is paged instead of the attachment library.
type ExportRequest struct {
	jobs.Page
	Files []string `json:"files,omitempty" validate:"omitempty,dive,required"`
}

// ImportRequest is the body of POST /api/v1/jobs/import.
type ImportRequest struct {
	jobs.Page

	// Redirects asks for Apache redirect rules of the imported files.
	Redirects bool `json:"redirects,omitempty"`
}

// RenameRequest is the body of POST /api/v1/jobs/rename.
type RenameRequest struct {
	jobs.Page
	Names []string `json:"names" validate:"required,min=1,dive,required"`
}

// PageResponse is one page of a job. Offset is already advanced.
type PageResponse struct {
	Count     int         `json:"count"`
	Total     int         `json:"total"`
	Offset    int         `json:"offset"`
	Results   []jobs.Item `json:"results"`
	Redirects []string    `json:"redirects,omitempty"`
}

func pageResponse(page jobs.Page, report *jobs.Report) PageResponse {
	results := report.Results
	if results == nil {
		results = []jobs.Item{}
	}
	return PageResponse{
		Count:   report.Count,
		Total:   report.Total,
		Offset:  page.Offset + report.Count,
		Results: results,
	}
}

// Export handles POST /api/v1/jobs/export.
func (h *JobsHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var (
		report *jobs.Report
		err    error
	)
	if len(req.Files) > 0 {
		report, err = h.runner.ExportFiles(r.Context(), req.Files, req.Page)
	} else {
		report, err = h.runner.Export(r.Context(), req.Page)
	}
	if err != nil {
		logger.ErrorCtx(r.Context(), "Export failed", logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, pageResponse(req.Page, report))
}

// Files handles GET /api/v1/jobs/export/files?group=.
func (h *JobsHandler) Files(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	files, err := h.runner.Discover(r.Context(), group)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if files == nil {
		files = []string{}
	}
	WriteJSONOK(w, map[string]any{"group": group, "files": files})
}

// Import handles POST /api/v1/jobs/import.
func (h *JobsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	report, err := h.runner.Import(r.Context(), req.Page)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Import failed", logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	resp := pageResponse(req.Page, report)
	if req.Redirects {
		var host string
		if domains := h.backend.Domains(); len(domains) > 0 {
			host = domains[0]
		}
		resp.Redirects = jobs.RedirectRules(report.Results, host, true)
	}
	WriteJSONOK(w, resp)
}

// Rename handles POST /api/v1/jobs/rename.
func (h *JobsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	report, err := h.runner.Rename(r.Context(), req.Names, req.Page)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	WriteJSONOK(w, pageResponse(req.Page, report))
}
