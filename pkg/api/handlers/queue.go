package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/transfer"
)

// QueueHandler manages the transfer queue.
type QueueHandler struct {
	repo         queue.Repository
	processor    *transfer.Processor
	processLimit int
}

// NewQueueHandler creates a QueueHandler. processLimit applies when a
// process call gives no limit.
func NewQueueHandler(repo queue.Repository, processor *transfer.Processor, processLimit int) *QueueHandler {
	return &QueueHandler{repo: repo, processor: processor, processLimit: processLimit}
}

// QueueResponse lists queued entries, oldest first.
type QueueResponse struct {
	Total   int            `json:"total"`
	Upload  int            `json:"upload"`
	Delete  int            `json:"delete"`
	Entries []*queue.Entry `json:"entries"`
}

// List handles GET /api/v1/queue?limit=.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	groups, err := h.repo.Get(r.Context(), limit)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to read queue", logger.Err(err))
		InternalServerError(w, "Failed to read queue")
		return
	}

	entries := groups.All()
	queue.SortEntries(entries)
	if entries == nil {
		entries = []*queue.Entry{}
	}
	WriteJSONOK(w, QueueResponse{
		Total:   len(entries),
		Upload:  len(groups[cdn.CommandUpload]),
		Delete:  len(groups[cdn.CommandDelete]),
		Entries: entries,
	})
}

// Delete handles DELETE /api/v1/queue/{id}.
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(w, "Invalid queue entry id")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		logger.ErrorCtx(r.Context(), "Failed to delete queue entry", "id", id, logger.Err(err))
		InternalServerError(w, "Failed to delete queue entry")
		return
	}
	WriteNoContent(w)
}

// Empty handles DELETE /api/v1/queue?command=upload|delete.
func (h *QueueHandler) Empty(w http.ResponseWriter, r *http.Request) {
	cmd, err := cdn.ParseCommand(r.URL.Query().Get("command"))
	if err != nil {
		BadRequest(w, "Query parameter command must be upload or delete")
		return
	}
	n, err := h.repo.Empty(r.Context(), cmd)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Failed to empty queue", logger.KeyCommand, cmd.String(), logger.Err(err))
		InternalServerError(w, "Failed to empty queue")
		return
	}
	logger.InfoCtx(r.Context(), "Queue emptied", logger.KeyCommand, cmd.String(), logger.KeyCount, n)
	WriteJSONOK(w, map[string]any{"command": cmd.String(), "removed": n})
}

// Process handles POST /api/v1/queue/process?limit=. A halted group is
// reported in the body, not as an HTTP error.
func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", h.processLimit)
	if !ok {
		return
	}
	report, err := h.processor.Process(r.Context(), limit)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Queue processing failed", logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	WriteJSONOK(w, report)
}
