// Package apperr defines the typed errors services return. The HTTP
// layer maps an *Error's Kind to a status code; anything else surfaces
// as a 500 without leaking internals.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind categorizes a domain error for HTTP mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindInternal
)

// Error is a domain error carrying a Kind plus optional context.
type Error struct {
	Kind    Kind
	Message string
	Op      string // operation that failed, for logs
	Err     error  // underlying cause
	Details any    // extra payload for the error response
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error with an underlying cause attached.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp tags the error with the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches a response payload, such as field-level
// validation errors.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// NotFound creates a not-found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates an invalid-input error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflicting-state error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Internal creates an unexpected-failure error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}
