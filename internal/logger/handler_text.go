package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ColorTextHandler is a slog.Handler producing one human readable line per
// record: "[time] [LEVEL] message key=value ...".
type ColorTextHandler struct {
	opts     *slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string // dotted group path applied to record attrs
	useColor bool
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorTextHandler{
		opts:     opts,
		w:        w,
		mu:       &sync.Mutex{},
		useColor: useColor,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes a log record
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = fmt.Appendf(buf, "[%s] [%s] %s", r.Time.Format("2006-01-02 15:04:05"), h.formatLevel(r.Level), r.Message)

	for _, attr := range h.attrs {
		buf = h.appendAttr(buf, "", attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	_, err := h.w.Write(buf)
	h.mu.Unlock()
	return err
}

func (h *ColorTextHandler) formatLevel(level slog.Level) string {
	var name, color string
	switch {
	case level < slog.LevelInfo:
		name, color = "DEBUG", colorGray
	case level < slog.LevelWarn:
		name, color = "INFO", colorGreen
	case level < slog.LevelError:
		name, color = "WARN", colorYellow
	default:
		name, color = "ERROR", colorRed
	}
	if h.useColor {
		return color + name + colorReset
	}
	return name
}

func (h *ColorTextHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	a.Value = a.Value.Resolve()

	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, key, ga)
		}
		return buf
	}

	if h.useColor {
		return fmt.Appendf(buf, " %s%s%s=%s", colorCyan, key, colorReset, formatValue(a.Value))
	}
	return fmt.Appendf(buf, " %s=%s", key, formatValue(a.Value))
}

// formatValue renders v, quoting strings that contain spaces or quotes so a
// line stays splittable on whitespace.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprintf("%v", v.Any())
	default:
		return v.String()
	}
}

// WithAttrs returns a new handler with additional attrs
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup returns a new handler qualifying subsequent keys with name
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix = clone.prefix + "." + name
	}
	return &clone
}
