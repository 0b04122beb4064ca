// Package errs defines the construct orchestrator's error taxonomy.
//
// Every low-level failure (subprocess spawn, I/O, CLI non-zero exit) is
// caught at the stage-runner boundary and converted into an *Error with one
// of the Kind values below; the state machine never raises, it only reads
// Kind off of results it already holds.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy from the error handling design.
type Kind string

const (
	// KindTicketStoreUnavailable means the ticket CLI is missing or exited
	// non-zero. Fatal to the iteration: the run aborts with exit reason
	// "ticket_store".
	KindTicketStoreUnavailable Kind = "ticket_store_unavailable"
	// KindTimeout means a stage's wall-clock budget was exceeded.
	KindTimeout Kind = "timeout"
	// KindContextLimit means the agent reported a context-window overflow.
	KindContextLimit Kind = "context_limit"
	// KindLoopDetected means the fingerprint repeated past the loop threshold.
	KindLoopDetected Kind = "loop_detected"
	// KindParseError means no structured output block could be extracted.
	KindParseError Kind = "parse_error"
	// KindGitConflict means a rebase produced a merge conflict.
	KindGitConflict Kind = "git_conflict"
	// KindBudgetExceeded means a global budget tripped.
	KindBudgetExceeded Kind = "budget_exceeded"
	// KindValidationError means the ticket store reported internal
	// inconsistency; recorded, does not halt the run.
	KindValidationError Kind = "validation_error"
)

// Error is a structured, chainable error carrying a taxonomy Kind alongside
// the usual message and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an *Error of the given kind with the supplied message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf formats a message and returns it as an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether err (or one of its wrapped causes) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
