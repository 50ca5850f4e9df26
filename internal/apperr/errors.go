// Package apperr defines the error taxonomy shared by the CoreTet services
// and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the bearer credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed or missing request fields.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedType is returned when an upload has a disallowed extension.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrQuotaExceeded is returned when an upload would exceed the caller's quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrUpstream is returned when the store or object store fails.
	ErrUpstream = errors.New("upstream error")

	// ErrNotImplemented is returned by capabilities that are declared but not built.
	ErrNotImplemented = errors.New("not implemented")
)

// Status maps an error onto the HTTP status code reported to the caller.
// Unknown errors map to 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooLarge), errors.Is(err, ErrQuotaExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the error message is safe to return to the caller.
// Upstream and unclassified failures are logged server-side and replaced
// with a generic message.
func Public(err error) bool {
	return Status(err) != http.StatusInternalServerError
}
