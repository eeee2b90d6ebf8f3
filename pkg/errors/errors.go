// Package errors defines the typed error taxonomy shared by every component
// of autopeerd. A component returns an *Error so the HTTP layer can map it
// to a status code without re-deriving the failure kind from string
// matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the kind of failure independent of its message or cause.
type Type string

// The closed set of error kinds the peering lifecycle engine can produce.
const (
	ErrBadRequest          Type = "bad_request"
	ErrUnauthorized        Type = "unauthorized"
	ErrForbidden           Type = "forbidden"
	ErrNotFound            Type = "not_found"
	ErrConflict            Type = "conflict"
	ErrRegistryUnavailable Type = "registry_unavailable"
	ErrRegistryCorrupt     Type = "registry_corrupt"
	ErrDeploymentFailed    Type = "deployment_failed"
	ErrIoError             Type = "io_error"
	ErrTemplate            Type = "template_error"
	ErrInternal            Type = "internal"
)

// Error is the concrete error value every component returns.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewBadRequestError reports a malformed or out-of-range request.
func NewBadRequestError(message string, cause error) *Error {
	return NewError(ErrBadRequest, message, cause)
}

// NewUnauthorizedError reports a missing, invalid, or expired token, or a
// signature/challenge that failed verification.
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}

// NewForbiddenError reports an ASN appearing in a request that does not
// match the ASN proven by the caller's bearer token.
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}

// NewNotFoundError reports a missing pending/verified record or an ASN
// absent from the registry.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewConflictError reports a fingerprint mismatch or a verify collision.
func NewConflictError(message string, cause error) *Error {
	return NewError(ErrConflict, message, cause)
}

// NewRegistryUnavailableError reports a registry mirror clone/fetch failure.
func NewRegistryUnavailableError(message string, cause error) *Error {
	return NewError(ErrRegistryUnavailable, message, cause)
}

// NewRegistryCorruptError reports a registry history that cannot be
// fast-forwarded; the mirror refuses to attempt a merge.
func NewRegistryCorruptError(message string, cause error) *Error {
	return NewError(ErrRegistryCorrupt, message, cause)
}

// NewDeploymentFailedError reports a tunnel or routing-daemon boundary
// failure during activate/deactivate/reload.
func NewDeploymentFailedError(message string, cause error) *Error {
	return NewError(ErrDeploymentFailed, message, cause)
}

// NewIoError reports a Config Store filesystem failure.
func NewIoError(message string, cause error) *Error {
	return NewError(ErrIoError, message, cause)
}

// NewTemplateError reports a missing placeholder in a rendered config — a
// programming bug, not an input error.
func NewTemplateError(message string, cause error) *Error {
	return NewError(ErrTemplate, message, cause)
}

// NewInternalError reports any other invariant break.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// is reports whether err is, or wraps, an *Error of type t.
func is(err error, t Type) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// IsBadRequest reports whether err is a *Error of type ErrBadRequest.
func IsBadRequest(err error) bool { return is(err, ErrBadRequest) }

// IsUnauthorized reports whether err is a *Error of type ErrUnauthorized.
func IsUnauthorized(err error) bool { return is(err, ErrUnauthorized) }

// IsForbidden reports whether err is a *Error of type ErrForbidden.
func IsForbidden(err error) bool { return is(err, ErrForbidden) }

// IsNotFound reports whether err is a *Error of type ErrNotFound.
func IsNotFound(err error) bool { return is(err, ErrNotFound) }

// IsConflict reports whether err is a *Error of type ErrConflict.
func IsConflict(err error) bool { return is(err, ErrConflict) }

// IsRegistryUnavailable reports whether err is a *Error of type ErrRegistryUnavailable.
func IsRegistryUnavailable(err error) bool { return is(err, ErrRegistryUnavailable) }

// IsRegistryCorrupt reports whether err is a *Error of type ErrRegistryCorrupt.
func IsRegistryCorrupt(err error) bool { return is(err, ErrRegistryCorrupt) }

// IsDeploymentFailed reports whether err is a *Error of type ErrDeploymentFailed.
func IsDeploymentFailed(err error) bool { return is(err, ErrDeploymentFailed) }

// IsIoError reports whether err is a *Error of type ErrIoError.
func IsIoError(err error) bool { return is(err, ErrIoError) }

// IsTemplate reports whether err is a *Error of type ErrTemplate.
func IsTemplate(err error) bool { return is(err, ErrTemplate) }

// IsInternal reports whether err is a *Error of type ErrInternal.
func IsInternal(err error) bool { return is(err, ErrInternal) }

// StatusCode maps an error Type to its HTTP status code.
func StatusCode(t Type) int {
	switch t {
	case ErrBadRequest:
		return 400
	case ErrUnauthorized:
		return 401
	case ErrForbidden:
		return 403
	case ErrNotFound:
		return 404
	case ErrConflict:
		return 409
	case ErrRegistryUnavailable, ErrRegistryCorrupt:
		return 503
	case ErrDeploymentFailed, ErrIoError, ErrTemplate, ErrInternal:
		return 500
	default:
		return 500
	}
}
