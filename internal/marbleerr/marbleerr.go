// Package marbleerr defines the typed error kinds shared by every layer of
// marble's write-side core, and the single place that maps them to HTTP
// status codes at the WebDAV boundary.
package marbleerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the semantic class of a failure, independent of which
// layer produced it.
type Kind int

const (
	// KindUnknown is never constructed deliberately; it signals a bug if seen.
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindLocked
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindPayloadTooLarge
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is a typed failure carrying a Kind, a human-readable message and an
// optional wrapped cause. Every facade and repository operation that can
// fail returns one of these (or nil), never a bare error from a lower layer.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, target) report true when target is a *Error of
// the same Kind (e.g. one built with NotFound("")), regardless of message
// or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound builds a KindNotFound error, e.g. "no file row at /notes/a.md".
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Locked builds a KindLocked error.
func Locked(format string, args ...any) *Error { return newf(KindLocked, format, args...) }

// Unauthorized builds a KindUnauthorized error. Credential failures must
// always use this constructor with an identical message regardless of
// whether the username or the password was wrong.
func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

// BadRequest builds a KindBadRequest error.
func BadRequest(format string, args ...any) *Error { return newf(KindBadRequest, format, args...) }

// PayloadTooLarge builds a KindPayloadTooLarge error.
func PayloadTooLarge(format string, args ...any) *Error {
	return newf(KindPayloadTooLarge, format, args...)
}

// Backend wraps a lower-level I/O failure (blob backend, database) as a
// KindBackend error without leaking the cause to callers outside this
// process; the cause is still available via errors.Unwrap for logging.
func Backend(cause error, format string, args ...any) *Error {
	return wrap(KindBackend, cause, format, args...)
}

// KindOf extracts the Kind from err, returning KindUnknown if err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the status code spec §7 assigns it. Kinds that
// map to more than one status in the spec (Conflict -> 409/412/405) are
// disambiguated by the caller, which should set the status explicitly for
// those cases instead of relying on this default.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindLocked:
		return http.StatusLocked
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
