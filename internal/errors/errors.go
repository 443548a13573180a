// Package errors provides coded domain errors for the reading report pipeline.
//
// Usage:
//
//	// In stages - return typed errors
//	if len(rows) == 0 {
//	    return errors.Extraction("worksheet returned no rows")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrExtraction) {
//	    monitoring.Logf("source unavailable: %v", err)
//	    return
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeTransform:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes map to the pipeline stage that failed.
const (
	CodeExtraction Code = "EXTRACTION"
	CodeTransform  Code = "TRANSFORM"
	CodeLoad       Code = "LOAD"
	CodeValidation Code = "VALIDATION"
	CodeConfig     Code = "CONFIG"
	CodeInternal   Code = "INTERNAL"
)

// ExitCode returns a sysexits-style process exit code for an error code.
func (c Code) ExitCode() int {
	switch c {
	case CodeExtraction:
		return 69 // EX_UNAVAILABLE
	case CodeTransform:
		return 65 // EX_DATAERR
	case CodeLoad:
		return 74 // EX_IOERR
	case CodeValidation:
		return 64 // EX_USAGE
	case CodeConfig:
		return 78 // EX_CONFIG
	default:
		return 70 // EX_SOFTWARE
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// ExitCode returns the process exit code for this error.
func (e *Error) ExitCode() int {
	return e.Code.ExitCode()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrExtraction = &Error{Code: CodeExtraction, Message: "extraction failed"}
	ErrTransform  = &Error{Code: CodeTransform, Message: "transform failed"}
	ErrLoad       = &Error{Code: CodeLoad, Message: "load failed"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConfig     = &Error{Code: CodeConfig, Message: "configuration error"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Extraction creates an extraction error.
func Extraction(msg string) *Error {
	return &Error{Code: CodeExtraction, Message: msg}
}

// Extractionf creates an extraction error with formatted message.
func Extractionf(format string, args ...any) *Error {
	return &Error{Code: CodeExtraction, Message: fmt.Sprintf(format, args...)}
}

// Transform creates a transform error.
func Transform(msg string) *Error {
	return &Error{Code: CodeTransform, Message: msg}
}

// Transformf creates a transform error with formatted message.
func Transformf(format string, args ...any) *Error {
	return &Error{Code: CodeTransform, Message: fmt.Sprintf(format, args...)}
}

// Load creates a load error.
func Load(msg string) *Error {
	return &Error{Code: CodeLoad, Message: msg}
}

// Loadf creates a load error with formatted message.
func Loadf(format string, args ...any) *Error {
	return &Error{Code: CodeLoad, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Config creates a configuration error.
func Config(msg string) *Error {
	return &Error{Code: CodeConfig, Message: msg}
}

// Configf creates a configuration error with formatted message.
func Configf(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// ExitCode returns the exit code for any error. Coded errors map to
// sysexits values; everything else exits 1.
func ExitCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}
