// Package output renders command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses the -o flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// ANSI colors
const (
	red    = "31"
	green  = "32"
	yellow = "33"
)

// Printer writes command output in one format.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a Printer.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

// StdoutPrinter writes to stdout, with color only on a terminal and when
// NO_COLOR is unset.
func StdoutPrinter(format Format) *Printer {
	color := format == FormatTable && os.Getenv("NO_COLOR") == "" &&
		isatty.IsTerminal(os.Stdout.Fd())
	return NewPrinter(os.Stdout, format, color)
}

func (p *Printer) Format() Format     { return p.format }
func (p *Printer) Writer() io.Writer  { return p.out }
func (p *Printer) ColorEnabled() bool { return p.color }

// Structured reports whether the printer emits JSON or YAML.
func (p *Printer) Structured() bool {
	return p.format == FormatJSON || p.format == FormatYAML
}

// Print writes data in the configured format. In table format data must be
// a TableRenderer, otherwise it is printed as JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (p *Printer) Success(msg string) { p.Println(p.paint(green, msg)) }
func (p *Printer) Warning(msg string) { p.Println(p.paint(yellow, msg)) }
func (p *Printer) Error(msg string)   { p.Println(p.paint(red, msg)) }

// Item prints one per-file line of a job or transfer: the outcome, the
// path, an optional target and the message when it is not plain success.
func (p *Printer) Item(outcome, path, target, message string) {
	code := red
	switch outcome {
	case "ok":
		code = green
	case "halt":
		code = yellow
	}
	line := p.paint(code, fmt.Sprintf("%-5s", outcome)) + " " + path
	if target != "" {
		line += " -> " + target
	}
	if outcome != "ok" && message != "" {
		line += ": " + message
	}
	p.Println(line)
}
