// Package enginerr defines the engine-wide error taxonomy. Every error that
// crosses a component boundary (venue worker -> scheduler -> broadcaster)
// carries one of these codes so callers can branch on retryability without
// string matching.
package enginerr

import (
	"errors"
	"fmt"
)

// Code is a closed enum of the error kinds the engine recognizes.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeNotFound         Code = "not_found"
	CodeVenueTransient   Code = "venue_transient"
	CodeVenuePermanent   Code = "venue_permanent"
	CodeNoQuotes         Code = "no_quotes"
	CodeDeadlineExceeded Code = "deadline_exceeded"
	CodeSwapRejected     Code = "swap_rejected"
	CodeInternal         Code = "internal"
)

// retryable reports whether the given code, on its own, indicates the
// caller should attempt the operation again.
var retryable = map[Code]bool{
	CodeVenueTransient: true,
}

// Error is the engine's structured error type. It wraps an underlying cause
// while attaching a machine-readable Code and an explicit Retryable flag
// (kept separate from the code table since callers sometimes downgrade
// retryability after exhausting attempts).
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with the default retryability for its code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable[code]}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable[code], Cause: cause}
}

// WithRetryable returns a copy of e with Retryable overridden, used when a
// worker downgrades a transient error to permanent after exhausting
// attempts.
func (e *Error) WithRetryable(retryable bool) *Error {
	clone := *e
	clone.Retryable = retryable
	return &clone
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// CodeInternal otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
