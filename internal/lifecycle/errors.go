package lifecycle

import "errors"

// Sentinel errors for lifecycle operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrMetadataMismatch = errors.New("metadata does not match event type")
	ErrNotCancellable   = errors.New("event can only be cancelled while pending")
	ErrNotResumable     = errors.New("event is not pending")
	ErrNotDue           = errors.New("event effective date has not been reached")
)

// errSkipTask is returned by a handler that decided not to act. The executor
// marks the task skipped instead of failed.
var errSkipTask = errors.New("task skipped")
