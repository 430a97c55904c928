package logger

import (
	"log/slog"
)

// Standard field keys. Use these consistently so log lines can be queried
// across the processor, the jobs and the API.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"

	// ========================================================================
	// Transfers
	// ========================================================================
	KeyJob        = "job"
	KeyEngine     = "engine"
	KeyCommand    = "command"
	KeyLocalPath  = "local_path"
	KeyRemotePath = "remote_path"
	KeyQueueID    = "queue_id"
	KeyOutcome    = "outcome"
	KeyCount      = "count"
	KeyTotal      = "total"
	KeyOffset     = "offset"
	KeyLimit      = "limit"
	KeyBytes      = "bytes"

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyBucket    = "bucket"
	KeyKey       = "key"
	KeyHost      = "host"
	KeyDomain    = "domain"
	KeyAttempt   = "attempt"
	KeyURL       = "url"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyPath       = "path"
	KeyReason     = "reason"
)

// LocalPath returns a slog.Attr for a local file path
func LocalPath(p string) slog.Attr {
	return slog.String(KeyLocalPath, p)
}

// RemotePath returns a slog.Attr for a remote object path
func RemotePath(p string) slog.Attr {
	return slog.String(KeyRemotePath, p)
}

// Engine returns a slog.Attr for the backend engine
func Engine(name string) slog.Attr {
	return slog.String(KeyEngine, name)
}

// Command returns a slog.Attr for the transfer command
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
