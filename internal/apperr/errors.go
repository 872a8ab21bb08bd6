// Package apperr defines the error taxonomy shared by the engine and its stores.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify a returned error.
var (
	// ErrInvalidInput marks malformed quality, outcome or ids. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown user, item, lesson or session.
	ErrNotFound = errors.New("not found")

	// ErrTransientStore marks an I/O failure that may succeed on retry.
	ErrTransientStore = errors.New("transient store failure")

	// ErrInvariantViolation marks a broken session invariant, e.g. building a
	// queue while a live snapshot exists.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Error wraps a classified error with the operation that produced it.
//
// The format is: "studyflow: <Op>: <Err>"
type Error struct {
	// Op is the name of the operation that failed.
	Op string

	// Kind is one of the sentinel errors above.
	Kind error

	// Err carries the detail; it may be nil when Kind says everything.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("studyflow: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("studyflow: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the detail to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New classifies err under kind for operation op. A nil err still yields an
// error, since the kind alone is meaningful.
func New(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// InvalidInput builds an ErrInvalidInput error with a formatted detail.
func InvalidInput(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvalidInput, Err: fmt.Errorf(format, args...)}
}

// NotFound builds an ErrNotFound error with a formatted detail.
func NotFound(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrNotFound, Err: fmt.Errorf(format, args...)}
}

// InvariantViolation builds an ErrInvariantViolation error with a formatted detail.
func InvariantViolation(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvariantViolation, Err: fmt.Errorf(format, args...)}
}

// Transient wraps a store failure that the store layer may retry.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: ErrTransientStore, Err: err}
}

// IsRetryable reports whether err may be retried by the store layer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
