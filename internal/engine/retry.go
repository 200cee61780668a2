package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// Recommended retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// AttemptRecorder persists one record per attempt for observability.
type AttemptRecorder interface {
	RecordRetryAttempt(ctx context.Context, a domain.RetryAttempt) error
}

// RetryExecutor wraps an operation with classified retries. Terminal errors
// return immediately; rate-limit hints are honored verbatim (capped at
// MaxDelay) without growing the exponential backoff; everything else backs
// off exponentially with full jitter. The backoff policy lives here once,
// instead of being reimplemented per integration.
type RetryExecutor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	recorder AttemptRecorder
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	randN func(n int64) int64
}

func NewRetryExecutor(recorder AttemptRecorder, logger *slog.Logger) *RetryExecutor {
	return &RetryExecutor{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		randN:       rand.Int63n,
	}
}

// Execute runs op until it succeeds, fails terminally, exhausts the attempt
// budget, or the context deadline expires. It returns the number of attempts
// made alongside the terminal error, if any.
//
// Deadline expiry surfaces as domain.ErrDeadlineExceeded so callers can
// distinguish "exhausted retry budget" from "ran out of wall clock".
func (e *RetryExecutor) Execute(ctx context.Context, operationID string, op func(context.Context) error) (int, error) {
	var backoff time.Duration
	transientFailures := 0

	for attempt := 1; ; attempt++ {
		scheduled := e.now()
		err := op(ctx)
		executed := e.now()

		e.record(ctx, domain.RetryAttempt{
			OperationID:   operationID,
			AttemptNumber: attempt,
			ScheduledAt:   scheduled,
			ExecutedAt:    executed,
			Outcome:       classifyAttempt(err),
			BackoffMs:     backoff.Milliseconds(),
		})

		if err == nil {
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, deadlineError(ctx, err)
		}

		var integration *domain.IntegrationError
		isClassified := errors.As(err, &integration)
		if isClassified && !integration.Retryable {
			return attempt, err
		}

		if attempt >= e.MaxAttempts {
			return attempt, &domain.ExhaustedError{Attempts: attempt, Err: err}
		}

		if isClassified && integration.RetryAfter > 0 {
			// Explicit downstream hint: sleep exactly that long (bounded),
			// without counting toward the transient backoff curve.
			backoff = min(integration.RetryAfter, e.MaxDelay)
		} else {
			transientFailures++
			backoff = e.transientBackoff(transientFailures)
		}

		e.logger.Debug("retrying operation",
			"operation_id", operationID,
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
		)

		if serr := e.sleep(ctx, backoff); serr != nil {
			return attempt, deadlineError(ctx, err)
		}
	}
}

// transientBackoff computes min(MaxDelay, Base * 2^(n-1)) + jitter[0, Base).
func (e *RetryExecutor) transientBackoff(n int) time.Duration {
	delay := e.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= e.MaxDelay {
			delay = e.MaxDelay
			break
		}
	}
	if delay > e.MaxDelay {
		delay = e.MaxDelay
	}
	return delay + time.Duration(e.randN(int64(e.BaseDelay)))
}

func (e *RetryExecutor) record(ctx context.Context, a domain.RetryAttempt) {
	if e.recorder == nil {
		return
	}
	// Recording is best-effort; use a detached context so an expired
	// operation deadline cannot lose the attempt trail.
	if err := e.recorder.RecordRetryAttempt(context.WithoutCancel(ctx), a); err != nil {
		e.logger.Error("failed to record retry attempt",
			"error", err,
			"operation_id", a.OperationID,
			"attempt", a.AttemptNumber,
		)
	}
}

func classifyAttempt(err error) domain.AttemptOutcome {
	if err == nil {
		return domain.AttemptSuccess
	}
	var integration *domain.IntegrationError
	if errors.As(err, &integration) && !integration.Retryable {
		return domain.AttemptTerminalFailure
	}
	// Unclassified failures are treated as transient: classification is the
	// adapter's job, and anything it did not rule terminal is worth retrying.
	return domain.AttemptRetryableFailure
}

func deadlineError(ctx context.Context, last error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrDeadlineExceeded
	}
	return last
}
