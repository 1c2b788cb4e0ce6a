package errors

import (
	"fmt"
	"time"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
	ErrOnlyFiles   = fmt.Errorf("word list directory contains directories")

	// Authentication: the presented credential could not be validated.
	// Surfaced as an immediate disconnect on the live channel.
	ErrUnauthenticated    = fmt.Errorf("credential could not be validated")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Chat actions rejected without closing the connection.
	ErrInvalidMessage   = fmt.Errorf("message body is empty or too long")
	ErrPermissionDenied = fmt.Errorf("actor is not allowed to perform this chat action")
	ErrNotFound         = fmt.Errorf("referenced entity no longer exists")
	ErrNotParticipant   = fmt.Errorf("%w: sender is not an active participant", ErrPermissionDenied)

	// One connection unreachable during fan-out. Logged and skipped,
	// never aborts persistence or the rest of the batch.
	ErrTransientDelivery = fmt.Errorf("transient delivery failure")
)

// RateLimitError carries the retry-after window so the client can back off
// for a known duration instead of busy-retrying. It is a distinct
// client-observable condition, not a generic failure.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}
