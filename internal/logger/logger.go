// Package logger is the process-wide structured logger for dittocdn.
//
// It wraps log/slog behind package-level functions so every component logs
// through the same handler, whose level and format can be switched at runtime
// (for example after the configuration file has been loaded).
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	outFile  *os.File
	useColor bool = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. ok is false for unknown names.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reconfigure rebuilds the slog handler from the current settings.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: Level(currentLevel.Load()).slogLevel()}

	var handler slog.Handler
	if format, _ := currentFormat.Load().(string); format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init applies cfg. Output can be "stdout", "stderr", or a file path.
// A previously opened log file is closed when the output changes.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w     io.Writer
			f     *os.File
			color bool
		)
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			var err error
			f, err = os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w = f
		}

		mu.Lock()
		if outFile != nil {
			_ = outFile.Close()
		}
		output, outFile, useColor = w, f, color
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter routes output to w. Used by tests and by the CLI when it
// needs logs on stderr while stdout carries command output.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
	reconfigure()
}

// SetLevel sets the minimum log level. Unknown names are ignored.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat sets the output format (text or json). Unknown formats are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

// GetLevel returns the active level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

func enabled(l Level) bool {
	return l >= Level(currentLevel.Load())
}

func getLogger() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// ============================================================================
// Structured Logging API
// ============================================================================

// Debug logs at debug level. Usage: Debug("message", "key1", value1, ...)
func Debug(msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// ============================================================================
// Context-aware Logging API
// ============================================================================

// DebugCtx logs at debug level, prefixing the LogContext fields found in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 12+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.RequestID != "" {
		ctxArgs = append(ctxArgs, KeyRequestID, lc.RequestID)
	}
	if lc.Job != "" {
		ctxArgs = append(ctxArgs, KeyJob, lc.Job)
	}
	if lc.Engine != "" {
		ctxArgs = append(ctxArgs, KeyEngine, lc.Engine)
	}
	if lc.Command != "" {
		ctxArgs = append(ctxArgs, KeyCommand, lc.Command)
	}
	return append(ctxArgs, args...)
}

// With returns a slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns the time elapsed since start in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
