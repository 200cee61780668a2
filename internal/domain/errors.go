package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateInFlight is returned when an idempotency key is reserved
	// while a previous delivery with the same key is still pending.
	ErrDuplicateInFlight = errors.New("delivery already in flight")

	// ErrDeadlineExceeded is returned when an operation's wall-clock deadline
	// expires before its retry budget does.
	ErrDeadlineExceeded = errors.New("operation deadline exceeded")

	// ErrOutcomeConflict is returned when an idempotency key that already has
	// a terminal outcome is completed again with a different one.
	ErrOutcomeConflict = errors.New("conflicting outcome already recorded")
)

// IntegrationError is a downstream failure classified at the adapter
// boundary. The retry executor trusts this classification for the remainder
// of the attempt sequence. RetryAfter, when set, is an explicit hint from the
// downstream (e.g. a 429 Retry-After header).
type IntegrationError struct {
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *IntegrationError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s integration error: %v", kind, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// ExhaustedError wraps the last underlying failure after the retry budget is
// consumed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// ErrorClass maps a terminal error to the stable class name recorded in
// outcome details and notifications.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return "retries_exhausted"
	}
	if errors.Is(err, ErrDeadlineExceeded) {
		return "deadline_exceeded"
	}

	var integration *IntegrationError
	if errors.As(err, &integration) {
		if integration.Retryable {
			return "retryable_integration"
		}
		return "terminal_integration"
	}

	return "unknown"
}
