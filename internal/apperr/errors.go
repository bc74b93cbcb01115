// Package apperr defines the error kinds surfaced by the publication engine.
// Callers branch on kind with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// Error carries the failing operation and a caller-facing message alongside
// the kind and, optionally, the underlying cause.
type Error struct {
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(op string, kind error, err error, message string) error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// Message returns the caller-facing message of err, or its text when it is
// not an *Error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.Error()
	}
	return err.Error()
}
