package cdn

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a queued transfer operation. The numeric values are persisted.
type Command int

const (
	CommandUpload Command = 1
	CommandDelete Command = 2
)

// Commands lists the commands in processing order.
func Commands() []Command {
	return []Command{CommandUpload, CommandDelete}
}

func (c Command) String() string {
	switch c {
	case CommandUpload:
		return "upload"
	case CommandDelete:
		return "delete"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Opposite returns the command that cancels c.
func (c Command) Opposite() Command {
	if c == CommandUpload {
		return CommandDelete
	}
	return CommandUpload
}

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	return c == CommandUpload || c == CommandDelete
}

// ParseCommand accepts "upload", "delete" or their numeric forms.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload", "1":
		return CommandUpload, nil
	case "delete", "2":
		return CommandDelete, nil
	default:
		return 0, fmt.Errorf("invalid command %q (valid: upload, delete)", s)
	}
}

// Outcome is the per-item status of a transfer. The numeric values are part
// of the paged job protocol.
type Outcome int

const (
	OutcomeHalt  Outcome = -1
	OutcomeError Outcome = 0
	OutcomeOK    Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeHalt:
		return "halt"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one file in a batch.
type Result struct {
	LocalPath  string  `json:"local_path"`
	RemotePath string  `json:"remote_path"`
	Outcome    Outcome `json:"result"`
	Message    string  `json:"error"`

	// Err is the underlying error, if any; kept for errors.Is on call sites.
	Err error `json:"-" yaml:"-"`
}

// MessageOK is the message carried by successful results.
const MessageOK = "OK"

// OK builds a successful result.
func OK(f File) Result {
	return Result{LocalPath: f.Local, RemotePath: f.Remote, Outcome: OutcomeOK, Message: MessageOK}
}

// Failed builds a per-item error result.
func Failed(f File, err error) Result {
	return Result{LocalPath: f.Local, RemotePath: f.Remote, Outcome: OutcomeError, Message: err.Error(), Err: err}
}

// Halted builds a halt result.
func Halted(f File, err error) Result {
	return Result{LocalPath: f.Local, RemotePath: f.Remote, Outcome: OutcomeHalt, Message: err.Error(), Err: err}
}

// ForError builds the result matching err's classification.
func ForError(f File, err error) Result {
	if err == nil {
		return OK(f)
	}
	if Classify(err) == OutcomeHalt {
		return Halted(f, err)
	}
	return Failed(f, err)
}

// HaltAll reports every file as halted with the same error; used when a
// session cannot be established and nothing is attempted.
func HaltAll(files []File, err error) (int, []Result) {
	results := make([]Result, len(files))
	for i, f := range files {
		results[i] = Halted(f, err)
	}
	return 0, results
}

// CountOK returns the number of OutcomeOK results.
func CountOK(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome == OutcomeOK {
			n++
		}
	}
	return n
}

// FirstHalt returns the first halt result, if any.
func FirstHalt(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Outcome == OutcomeHalt {
			return r, true
		}
	}
	return Result{}, false
}

// IsAlreadyExists reports whether r is the "already exists" skip.
func (r Result) IsAlreadyExists() bool {
	return errors.Is(r.Err, ErrAlreadyExists)
}
