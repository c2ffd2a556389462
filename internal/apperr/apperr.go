// Package apperr carries the error kinds the HTTP layer maps to status codes.
package apperr

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/markdave123-py/prescodata/internal/core"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status is the HTTP status code for the kind. Conflicts are reported as 400
// to stay compatible with existing clients.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured details (e.g. allowed fields) shown to the client.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error { return newError(KindValidation, msg) }

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

func Unauthorized(msg string) *Error { return newError(KindUnauthorized, msg) }

func Forbidden(msg string) *Error { return newError(KindForbidden, msg) }

func NotFound(msg string) *Error { return newError(KindNotFound, msg) }

func Conflict(msg string) *Error { return newError(KindConflict, msg) }

// Internal wraps an unexpected failure and records the call stack.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server Error", Err: errors.WithStack(err)}
}

// Wrap classifies err under kind with a client-facing message.
func Wrap(kind Kind, msg string, err error) *Error {
	if kind == KindInternal {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// From converts any error into an *Error, mapping store sentinels to their kinds.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae
	}
	switch {
	case stderrors.Is(err, core.ErrDuplicateKey):
		return Wrap(KindConflict, "Duplicate field value entered", err)
	case stderrors.Is(err, core.ErrNotFound):
		return Wrap(KindNotFound, "Resource not found", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindInternal, Message: "Request timed out", Err: errors.WithStack(err)}
	}
	return Internal(err)
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Stack returns the "%+v" rendering of the first stack trace found in err's chain.
func Stack(err error) string {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			return fmt.Sprintf("%+v", st.StackTrace())
		}
	}
	return ""
}
