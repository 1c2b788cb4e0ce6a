package errors

import (
	"errors"
	"net/http"
)

// MapToHTTPStatus translates domain sentinel errors into HTTP status codes
// at the transport boundary. Services and repositories only ever return
// sentinels; the mapping lives here so handlers stay mechanical.
func MapToHTTPStatus(err error) int {
	var rateLimited RateLimitError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidPassword), errors.Is(err, ErrInvalidMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
