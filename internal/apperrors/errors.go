// Package apperrors defines the coded errors the services return and the HTTP
// layer renders as { "error": message } responses.
//
//	if errors.Is(err, apperrors.ErrUnauthorized) {
//	    // prompt for sign-in
//	}
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error category
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeNotFound           Code = "NOT_FOUND"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
	CodeUpstream           Code = "UPSTREAM"
)

// HTTPStatus maps a code onto a response status
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a coded error with a user-facing message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Status  int // overrides Code.HTTPStatus when non-zero
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the response status for this error
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Code.HTTPStatus()
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
	ErrInvalidRequest     = &Error{Code: CodeInvalidRequest, Message: "Invalid request"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "Not found"}
	ErrPersistenceFailure = &Error{Code: CodePersistenceFailure, Message: "Operation failed"}
)

// Unauthorized reports a missing or invalid caller identity
func Unauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
}

// InvalidRequest reports a malformed request
func InvalidRequest(msg string, cause error) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg, cause: cause}
}

// NotFound reports a missing resource
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Persistence wraps a store failure. The cause is kept for logging; only the
// message reaches the client.
func Persistence(msg string, cause error) *Error {
	return &Error{Code: CodePersistenceFailure, Message: msg, cause: cause}
}

// Upstream reports a failure of an external service with the status to relay.
func Upstream(status int, msg string, cause error) *Error {
	return &Error{Code: CodeUpstream, Message: msg, Status: status, cause: cause}
}

// StatusAndMessage resolves any error into a response status and the message
// safe to show to the client.
func StatusAndMessage(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus(), e.Message
	}
	return http.StatusInternalServerError, "An unknown error occurred"
}
