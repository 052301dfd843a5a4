// Package apperr defines the stable error taxonomy shared by the store,
// the middleware and the HTTP handlers.
//
// Errors carry a machine-readable Kind so that automated handling (HTTP
// status mapping, client retry decisions) never has to match on message
// text, a human-readable Msg for operators, and an optional Op plus a
// wrapped cause for a logical stack trace.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the stable machine-readable classification of an error.
type Kind string

const (
	// Unauthenticated is returned for a missing, malformed or unverifiable
	// credential, and for a verified credential whose user no longer exists.
	Unauthenticated Kind = "unauthenticated"
	// TokenExpired is kept distinct from Unauthenticated so clients can
	// silently refresh instead of forcing a re-login.
	TokenExpired Kind = "token expired"
	// Forbidden means the caller is authenticated but not allowed: wrong
	// tenant, insufficient role or capability, or a self-protection rule.
	Forbidden Kind = "forbidden"
	// NotFound means the entity is absent, independent of tenant.
	NotFound Kind = "not found"
	// Conflict means a uniqueness constraint was violated.
	Conflict Kind = "conflict"
	// InvalidArgument means the caller supplied unusable input.
	InvalidArgument Kind = "invalid argument"
	// StoreError is an unexpected persistence-layer failure. The cause is
	// preserved for logging and never surfaced to the caller.
	StoreError Kind = "store error"
)

// Error is the error type returned by every fallible operation in the
// service core.
type Error struct {
	Kind Kind
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive
// messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Kind)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, walking the wrapped chain. A nil error
// has no kind; an error outside the taxonomy is classified as StoreError
// so nothing unclassified ever reaches a caller.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StoreError
}

// Message returns the caller-safe message for err. StoreError causes are
// replaced with a generic message; everything else keeps its Msg.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == StoreError {
			return "internal storage error"
		}
		if e.Msg != "" {
			return e.Msg
		}
	}
	return "internal error"
}

// HTTPStatus maps a Kind to the HTTP status code used by the transport.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated, TokenExpired:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
