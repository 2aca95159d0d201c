package traderr

import (
	"errors"
	"net/http"
)

// Sentinel errors for every failure kind a caller can act on. Services wrap
// these with fmt.Errorf("...: %w", ...) so errors.Is keeps working across
// layers.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAvailable = errors.New("insufficient available balance")
	ErrInvalidUnlock         = errors.New("unlock exceeds locked balance")
	ErrInvalidTransition     = errors.New("invalid order transition")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrRateLimited           = errors.New("rate limited")
	ErrConfirmationMismatch  = errors.New("confirmation mismatch")
	ErrForbidden             = errors.New("forbidden")
	ErrStaleQuote            = errors.New("stale quote")
	ErrStorageFailure        = errors.New("storage failure")
	ErrNotFound              = errors.New("not found")
)

// HTTPStatus maps a taxonomy error to the status code the HTTP boundary
// should report. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientAvailable),
		errors.Is(err, ErrInvalidUnlock),
		errors.Is(err, ErrInvalidOrder):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrConfirmationMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStaleQuote):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
