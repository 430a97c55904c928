package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittocdn/internal/logger"
)

// maxJSONBody bounds request bodies other than /rewrite.
const maxJSONBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeJSONBody decodes and validates a JSON request body. It writes the
// error response and returns false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "Invalid request body: "+err.Error())
		return false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			BadRequest(w, err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg := "failed " + fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			fields[fe.Field()] = msg
		}
		UnprocessableEntity(w, "Request validation failed", fields)
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter, or def when it is
// absent. It writes a 400 and returns false when the value is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		BadRequest(w, "Query parameter "+name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// writeJSON encodes to a buffer first so an encoding failure can still be
// answered with a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", logger.Err(err))
		InternalServerError(w, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// WriteJSONCreated writes a 201 Created JSON response.
func WriteJSONCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
