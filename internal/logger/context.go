package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds the per-operation fields injected by the *Ctx functions.
type LogContext struct {
	TraceID   string
	SpanID    string
	RequestID string    // API request id (chi RequestID middleware)
	Job       string    // process, export, import, rename, rewrite, watch
	Engine    string    // backend engine name
	Command   string    // upload or delete
	StartTime time.Time
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for the named job.
func NewLogContext(job string) *LogContext {
	return &LogContext{
		Job:       job,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithEngine returns a copy with the engine set
func (lc *LogContext) WithEngine(engine string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Engine = engine
	}
	return clone
}

// WithCommand returns a copy with the transfer command set
func (lc *LogContext) WithCommand(command string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Command = command
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
