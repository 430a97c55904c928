// Package handlers provides the HTTP handlers of the dittocdn API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem details document.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Errors lists failed request fields, one message each.
	Errors map[string]string `json:"errors,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &Problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblem(w http.ResponseWriter, p *Problem) {
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized writes a 401 Unauthorized problem response.
func Unauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// Forbidden writes a 403 Forbidden problem response.
func Forbidden(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusForbidden, "Forbidden", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// Conflict writes a 409 Conflict problem response.
func Conflict(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusConflict, "Conflict", detail)
}

// UnprocessableEntity writes a 422 problem response listing the failed
// fields.
func UnprocessableEntity(w http.ResponseWriter, detail string, fields map[string]string) {
	writeProblem(w, &Problem{
		Type:   "about:blank",
		Title:  "Unprocessable Entity",
		Status: http.StatusUnprocessableEntity,
		Detail: detail,
		Errors: fields,
	})
}

// BadGateway writes a 502 problem response, used when the CDN fails.
func BadGateway(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadGateway, "Bad Gateway", detail)
}

// InternalServerError writes a 500 Internal Server Error problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}
