// Package domainerrors provides coded domain errors shared by services and
// transport. Stores return sentinel errors; services translate them into coded
// errors here so handlers can map codes to HTTP statuses without inspecting
// error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies a domain error for transport mapping and branching.
type Code string

const (
	CodeValidation          Code = "validation"
	CodeBadRequest          Code = "bad_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeForbidden           Code = "forbidden"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeInvalidState        Code = "invalid_state"
	CodeUnsupportedDocument Code = "unsupported_document"
	CodeUpstream            Code = "upstream_failure"
	CodeInvariantViolation  Code = "invariant_violation"
	CodeInternal            Code = "internal"
)

// Error is a coded domain error. Reasons carries the full violation list for
// validation failures so callers can present a complete correction list.
type Error struct {
	Code    Code
	Message string
	Reasons []string
	cause   error
}

func (e *Error) Error() string {
	if len(e.Reasons) > 0 {
		return e.Message + ": " + strings.Join(e.Reasons, "; ")
	}
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Wrapf attaches a code and formatted message to an underlying error.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// Validation builds a CodeValidation error carrying every accumulated reason.
func Validation(reasons []string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Reasons: append([]string(nil), reasons...)}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonsOf extracts the violation list from a validation error, if any.
func ReasonsOf(err error) []string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reasons
	}
	return nil
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeUnsupportedDocument:
		return http.StatusUnsupportedMediaType
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
