package cdn

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is reported when the local file of an upload is missing.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrAlreadyExists is reported when the remote copy already has the
	// local content hash. It is an OutcomeError even though nothing failed.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrNotFound is reported when a remote object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrProbeMismatch is returned by Test when the probe reads back different bytes.
	ErrProbeMismatch = errors.New("objects are not equal")
)

// ItemError is a recoverable failure attributable to one file.
type ItemError struct {
	Op   string // e.g. "put object", "delete object", "get object info"
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	if e.Err == nil {
		return "unable to " + e.Op
	}
	return fmt.Sprintf("unable to %s (%v)", e.Op, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// NewItemError wraps err as a per-item failure of op on path.
func NewItemError(op, path string, err error) *ItemError {
	return &ItemError{Op: op, Path: path, Err: err}
}

// HaltError is a connection, authentication or container failure that
// prevents any per-item attempt.
type HaltError struct {
	Engine string
	Err    error
}

func (e *HaltError) Error() string {
	return e.Err.Error()
}

func (e *HaltError) Unwrap() error { return e.Err }

// NewHaltError wraps err as a session-level failure of engine.
func NewHaltError(engine string, err error) *HaltError {
	return &HaltError{Engine: engine, Err: err}
}

// ValidationError is a configuration problem detected before any network call.
type ValidationError struct {
	Engine string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError reports an invalid or missing field of engine's config.
func NewValidationError(engine, field, msg string) *ValidationError {
	return &ValidationError{Engine: engine, Field: field, Msg: msg}
}

// Classify maps err to the Outcome it produces in a batch. Halt and
// validation errors halt the batch; everything else is per-item.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var he *HaltError
	var ve *ValidationError
	if errors.As(err, &he) || errors.As(err, &ve) {
		return OutcomeHalt
	}
	return OutcomeError
}
