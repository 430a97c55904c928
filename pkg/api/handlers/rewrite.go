package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/rewrite"
)

// Rewrite request and response headers.
const (
	HeaderRequestURI = "X-Request-URI"
	HeaderSkipped    = "X-Rewrite-Skipped"
	HeaderMatches    = "X-Rewrite-Matches"
)

// RewriteHandler renders page bodies through the rewriter.
type RewriteHandler struct {
	rewriter *rewrite.Rewriter
	policy   *rewrite.Policy
	maxBody  int64
}

// NewRewriteHandler creates a RewriteHandler. maxBody <= 0 uses
// rewrite.DefaultMaxBody.
func NewRewriteHandler(rw *rewrite.Rewriter, policy *rewrite.Policy, maxBody int64) *RewriteHandler {
	if maxBody <= 0 {
		maxBody = rewrite.DefaultMaxBody.Int64()
	}
	return &RewriteHandler{rewriter: rw, policy: policy, maxBody: maxBody}
}

// Rewrite handles POST /api/v1/rewrite. The raw body is the page to render.
// X-Request-URI and User-Agent describe the original page request; a
// request the policy rejects gets its body back unchanged with the reason in
// X-Rewrite-Skipped. Clients accepting application/json get the matches too.
func (h *RewriteHandler) Rewrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteProblem(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				"Body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
			return
		}
		BadRequest(w, "Failed to read body")
		return
	}

	info := rewrite.RequestInfo{URI: r.Header.Get(HeaderRequestURI), UserAgent: r.UserAgent()}
	if reason, ok := h.policy.Allow(info); !ok {
		logger.DebugCtx(r.Context(), "Rewrite skipped", logger.KeyReason, reason, logger.KeyURL, info.URI)
		w.Header().Set(HeaderSkipped, reason)
		h.write(w, r, &rewrite.Output{Body: string(body)})
		return
	}

	out, err := h.rewriter.Rewrite(r.Context(), string(body))
	if err != nil {
		logger.ErrorCtx(r.Context(), "Rewrite failed", logger.Err(err))
		InternalServerError(w, err.Error())
		return
	}
	h.write(w, r, out)
}

func (h *RewriteHandler) write(w http.ResponseWriter, r *http.Request, out *rewrite.Output) {
	if out.Matches == nil {
		out.Matches = []rewrite.Match{}
	}
	if acceptsJSON(r) {
		WriteJSONOK(w, out)
		return
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set(HeaderMatches, strconv.Itoa(len(out.Matches)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out.Body)
}

func acceptsJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Accept"))
	return err == nil && mediaType == "application/json"
}
