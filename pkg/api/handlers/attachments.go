package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/site"
	"github.com/marmos91/dittocdn/pkg/transfer"
)

// AttachmentHandler mirrors media library changes to the CDN as they
// happen. Files that fail are queued for the processor.
type AttachmentHandler struct {
	catalog   *site.Catalog
	transfers *transfer.Transferrer
}

// NewAttachmentHandler creates an AttachmentHandler.
func NewAttachmentHandler(catalog *site.Catalog, transfers *transfer.Transferrer) *AttachmentHandler {
	return &AttachmentHandler{catalog: catalog, transfers: transfers}
}

// CreateAttachmentRequest registers an uploaded file. Sizes maps a size
// name to a file in the same directory as File.
type CreateAttachmentRequest struct {
	File     string            `json:"file" validate:"required"`
	Title    string            `json:"title,omitempty" validate:"max=255"`
	MimeType string            `json:"mime_type,omitempty" validate:"max=100"`
	Sizes    map[string]string `json:"sizes,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
}

// TransferResponse reports a foreground transfer.
type TransferResponse struct {
	Attachment *site.Attachment `json:"attachment"`
	Count      int              `json:"count"`
	Results    []cdn.Result     `json:"results"`
}

// Create handles POST /api/v1/attachments.
func (h *AttachmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAttachmentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	layout := h.transfers.Layout()
	a := &site.Attachment{
		File:     req.File,
		Title:    req.Title,
		MimeType: req.MimeType,
	}
	if len(req.Sizes) > 0 {
		a.Metadata = &site.AttachmentMetadata{File: req.File, Sizes: req.Sizes}
	}
	files := layout.AttachmentFiles(a)
	if len(files) > 0 {
		a.GUID = layout.FileURL(files[0])
	}

	if err := h.catalog.InsertAttachment(r.Context(), a); err != nil {
		logger.ErrorCtx(r.Context(), "Failed to register attachment", logger.Err(err))
		InternalServerError(w, "Failed to register attachment")
		return
	}

	count, results, err := h.transfers.Upload(r.Context(), files, true)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Attachment upload failed", "attachment_id", a.ID, logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	logger.InfoCtx(r.Context(), "Attachment uploaded", "attachment_id", a.ID, logger.KeyCount, count, logger.KeyTotal, len(files))
	WriteJSONCreated(w, TransferResponse{Attachment: a, Count: count, Results: nonNilResults(results)})
}

// Delete handles DELETE /api/v1/attachments/{id}. The catalog row goes even
// when some remote deletes failed, since those are queued.
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		BadRequest(w, "Invalid attachment id")
		return
	}

	a, err := h.catalog.GetAttachment(r.Context(), uint(id))
	if errors.Is(err, site.ErrNotFound) {
		NotFound(w, "Attachment not found")
		return
	}
	if err != nil {
		InternalServerError(w, "Failed to get attachment")
		return
	}

	files := h.transfers.Layout().AttachmentFiles(a)
	count, results, err := h.transfers.Delete(r.Context(), files, true)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Attachment delete failed", "attachment_id", a.ID, logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	if err := h.catalog.DeleteAttachment(r.Context(), a.ID); err != nil && !errors.Is(err, site.ErrNotFound) {
		InternalServerError(w, "Failed to delete attachment")
		return
	}
	logger.InfoCtx(r.Context(), "Attachment deleted", "attachment_id", a.ID, logger.KeyCount, count, logger.KeyTotal, len(files))
	WriteJSONOK(w, TransferResponse{Attachment: a, Count: count, Results: nonNilResults(results)})
}

func nonNilResults(results []cdn.Result) []cdn.Result {
	if results == nil {
		return []cdn.Result{}
	}
	return results
}
