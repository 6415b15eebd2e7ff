// Package domainerrors carries coded errors from services to transports.
//
// Services return *Error values (optionally wrapping an infrastructure cause) and
// transports translate the Code into a status without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	CodeBadRequest              Code = "bad_request"
	CodeValidation              Code = "validation_error"
	CodeInvalidInput            Code = "invalid_input"
	CodeDuplicateRecord         Code = "duplicate_record"
	CodeDuplicatePendingRequest Code = "duplicate_pending_request"
	CodeNotFound                Code = "not_found"
	CodeInvalidTransition       Code = "invalid_transition"
	CodeConflict                Code = "conflict"
	CodeUnauthenticated         Code = "unauthenticated"
	CodeUnauthorized            Code = "unauthorized"
	CodeTooManyRequests         Code = "too_many_requests"
	CodeTimeout                 Code = "timeout"
	CodeInvariantViolation      Code = "invariant_violation"
	CodeInternal                Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost coded error from the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in the chain has the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateRecord, CodeDuplicatePendingRequest, CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
