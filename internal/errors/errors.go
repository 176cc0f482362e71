// Package errors defines the error taxonomy shared by the scan engine and its
// collaborators. Every failure a worker can produce carries one of a small set
// of codes so callers can distinguish degraded phases from real faults.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an engine error.
type Code string

const (
	// CodeToolUnavailable marks a missing external binary or protocol
	// endpoint. The affected phase degrades; the session continues.
	CodeToolUnavailable Code = "TOOL_UNAVAILABLE"
	// CodeMalformedResult marks an unusable finding (bad address, empty
	// delta). The finding is dropped and logged; the worker continues.
	CodeMalformedResult Code = "MALFORMED_RESULT"
	// CodeBusy marks a rejected duplicate operation, such as a second deep
	// scan against a host that already has one in flight.
	CodeBusy Code = "BUSY"
	// CodeTimeout marks a bounded wait that expired. For the resolution
	// window this is normal completion, not a failure.
	CodeTimeout Code = "TIMEOUT"
	// CodeInternal marks everything else.
	CodeInternal Code = "INTERNAL"
)

// Error is a coded engine error, optionally tied to a target host.
type Error struct {
	Code    Code
	Message string
	Target  string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// WithTarget returns a copy of the error bound to a target host.
func (e *Error) WithTarget(target string) *Error {
	clone := *e
	clone.Target = target
	return &clone
}

// GetCode extracts the code from err, unwrapping as needed.
// Errors without a code report CodeInternal.
func GetCode(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// IsBusy reports whether err is a single-flight rejection.
func IsBusy(err error) bool {
	return IsCode(err, CodeBusy)
}

// IsToolUnavailable reports whether err marks a missing external tool.
func IsToolUnavailable(err error) bool {
	return IsCode(err, CodeToolUnavailable)
}

// IsTimeout reports whether err marks an expired bound.
func IsTimeout(err error) bool {
	return IsCode(err, CodeTimeout)
}
