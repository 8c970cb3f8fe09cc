// Package apierr defines the control plane's error taxonomy
// and its mapping onto HTTP status codes, independent of any one
// transport. Every handler in pkg/api returns one of these so the JSON
// error body and status code stay consistent across the whole surface.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy's fixed categories.
type Kind string

const (
	KindNotFound Kind = "NotFound"
	KindInvalidRequest Kind = "InvalidRequest"
	KindUnauthorized Kind = "Unauthorized"
	KindForbidden Kind = "Forbidden"
	KindConflict Kind = "Conflict"
	KindRateLimited Kind = "RateLimited"
	KindDependencyFailure Kind = "DependencyFailure"
	KindInternal Kind = "Internal"
)

// statusByKind is the HTTP mapping for each taxonomy entry.
var statusByKind = map[Kind]int{
	KindNotFound: http.StatusNotFound,
	KindInvalidRequest: http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden: http.StatusForbidden,
	KindConflict: http.StatusConflict,
	KindRateLimited: http.StatusTooManyRequests,
	KindDependencyFailure: http.StatusBadGateway,
	KindInternal: http.StatusInternalServerError,
}

// Error carries a taxonomy Kind plus a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Message string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code this error maps to.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }
func InvalidRequest(format string, args ...any) *Error { return newf(KindInvalidRequest, format, args...) }
func Unauthorized(format string, args ...any) *Error { return newf(KindUnauthorized, format, args...) }
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }
func RateLimited(format string, args ...any) *Error { return newf(KindRateLimited, format, args...) }

func DependencyFailure(cause error, format string, args ...any) *Error {
	e := newf(KindDependencyFailure, format, args...)
	e.Cause = cause
	return e
}

func Internal(cause error, format string, args ...any) *Error {
	e := newf(KindInternal, format, args...)
	e.Cause = cause
	return e
}

// As extracts an *Error from err, wrapping it as Internal if it isn't one
// already — used at transport boundaries so every response carries a Kind.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err, "unclassified error")
}
