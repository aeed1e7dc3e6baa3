package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/jml/internal/lifecycle"
)

// Sentinel errors for control plane operations.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrUserBusy       = errors.New("another lifecycle operation is running for this user")
	ErrInvalidRequest = errors.New("invalid request")
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrEventNotFound), errors.Is(err, lifecycle.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUserBusy),
		errors.Is(err, lifecycle.ErrNotCancellable),
		errors.Is(err, lifecycle.ErrNotResumable),
		errors.Is(err, lifecycle.ErrNotDue):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
