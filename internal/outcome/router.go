// Package outcome is the single place that turns a finished operation into
// user-visible reporting: one audit record, one idempotency completion, one
// notification pass. Individual components never notify users directly.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/notify"
	"github.com/Johnobhoy88/integration-core/internal/store"
)

// Store is the durable state the router touches.
type Store interface {
	InsertOutcomeRecord(ctx context.Context, rec domain.OutcomeRecord) (bool, error)
	GetOutcomeRecord(ctx context.Context, operationID string) (*domain.OutcomeRecord, error)
	CompleteIdempotencyKey(ctx context.Context, key, outcome string) error
}

// OperationResult is the terminal result of one logical operation, handed to
// the router by whichever component finished it.
type OperationResult struct {
	OperationID    string
	IdempotencyKey string
	Source         domain.SourceType
	EventType      string
	Attempts       int
	Duration       time.Duration
	Err            error
}

// Router drives the two-state terminal transition Running → {Success, Error}.
type Router struct {
	store      Store
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

func NewRouter(store Store, dispatcher *notify.Dispatcher, logger *slog.Logger) *Router {
	return &Router{store: store, dispatcher: dispatcher, logger: logger}
}

// Resolve records the terminal transition exactly once and triggers
// notifications. Re-invoking Resolve for the same operation (router retry,
// redelivered job) reuses the existing record, and the notified-channels
// guard keeps alerts single-shot per channel.
func (r *Router) Resolve(ctx context.Context, res OperationResult) error {
	rec := buildRecord(res)

	inserted, err := r.store.InsertOutcomeRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("persisting outcome record: %w", err)
	}
	if !inserted {
		existing, err := r.store.GetOutcomeRecord(ctx, res.OperationID)
		if err != nil {
			return fmt.Errorf("loading existing outcome record: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("outcome record for %s vanished after conflict", res.OperationID)
		}
		rec = *existing
	}

	idemOutcome := store.IdempotencySucceeded
	if rec.Status == domain.OutcomeError {
		idemOutcome = store.IdempotencyFailed
	}
	if res.IdempotencyKey != "" {
		err := r.store.CompleteIdempotencyKey(ctx, res.IdempotencyKey, idemOutcome)
		switch {
		case errors.Is(err, domain.ErrOutcomeConflict):
			// Logic error upstream: two deliveries of one key resolved
			// differently. Keep the first terminal outcome, surface loudly.
			r.logger.Error("idempotency outcome conflict",
				"operation_id", res.OperationID,
				"idempotency_key", res.IdempotencyKey,
				"error", err,
			)
		case err != nil:
			return fmt.Errorf("completing idempotency key: %w", err)
		}
	}

	if rec.Status == domain.OutcomeSuccess {
		r.logger.Info("operation succeeded",
			"operation_id", rec.OperationID,
			"attempts", rec.Detail.Attempts,
			"duration_ms", rec.Detail.DurationMs,
		)
	} else {
		r.logger.Warn("operation failed",
			"operation_id", rec.OperationID,
			"error_class", rec.Detail.ErrorClass,
			"attempts", rec.Detail.Attempts,
			"duration_ms", rec.Detail.DurationMs,
		)
	}

	r.dispatcher.Dispatch(ctx, rec)
	return nil
}

func buildRecord(res OperationResult) domain.OutcomeRecord {
	rec := domain.OutcomeRecord{
		OperationID: res.OperationID,
		Status:      domain.OutcomeSuccess,
		Detail: domain.OutcomeDetail{
			Source:     string(res.Source),
			EventType:  res.EventType,
			Attempts:   res.Attempts,
			DurationMs: res.Duration.Milliseconds(),
		},
		NotifiedChannels: []string{},
		CreatedAt:        time.Now().UTC(),
	}
	if res.Err != nil {
		rec.Status = domain.OutcomeError
		rec.Detail.ErrorClass = domain.ErrorClass(res.Err)
		rec.Detail.Message = res.Err.Error()
	}
	return rec
}
