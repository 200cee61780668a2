package store

import (
	"context"
	"fmt"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// Idempotency outcomes as persisted. A key is pending from reservation until
// the outcome router records a terminal result.
const (
	IdempotencyPending   = "pending"
	IdempotencySucceeded = "succeeded"
	IdempotencyFailed    = "failed"
)

// Reservation is the result of attempting to claim an idempotency key.
// When IsNew is false, Outcome and OperationID describe the prior delivery:
// pending means it is still in flight, a terminal outcome means the caller
// should replay the recorded result instead of re-executing side effects.
type Reservation struct {
	IsNew       bool
	Outcome     string
	OperationID string
}

// ReserveIdempotencyKey atomically claims a key for the given operation.
// The insert-or-nothing against the primary key guarantees that of two
// concurrent reservations for a new key, exactly one observes IsNew=true.
func (s *PostgresStore) ReserveIdempotencyKey(ctx context.Context, key, operationID string) (Reservation, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_records (key, operation_id, outcome)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING
	`, key, operationID, IdempotencyPending)
	if err != nil {
		return Reservation{}, fmt.Errorf("reserving idempotency key: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return Reservation{IsNew: true, Outcome: IdempotencyPending, OperationID: operationID}, nil
	}

	var res Reservation
	err = s.pool.QueryRow(ctx, `
		UPDATE idempotency_records
		SET last_seen_at = NOW()
		WHERE key = $1
		RETURNING outcome, operation_id
	`, key).Scan(&res.Outcome, &res.OperationID)
	if err != nil {
		return Reservation{}, fmt.Errorf("reading prior reservation: %w", err)
	}

	return res, nil
}

// ReleaseIdempotencyKey removes a reservation whose delivery never made it
// into the pipeline, so the upstream's redelivery is accepted as a fresh
// attempt instead of being rejected as in flight. The operation id match
// scopes the delete to the caller's own reservation, and only pending rows
// are removed; a key with a terminal outcome stays.
func (s *PostgresStore) ReleaseIdempotencyKey(ctx context.Context, key, operationID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_records
		WHERE key = $1 AND operation_id = $2 AND outcome = $3
	`, key, operationID, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// CompleteIdempotencyKey transitions a pending key to a terminal outcome
// exactly once. Repeating the same terminal outcome is a no-op; a different
// one is a logic error and is rejected with domain.ErrOutcomeConflict.
func (s *PostgresStore) CompleteIdempotencyKey(ctx context.Context, key, outcome string) error {
	if outcome != IdempotencySucceeded && outcome != IdempotencyFailed {
		return fmt.Errorf("invalid terminal outcome %q", outcome)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE idempotency_records
		SET outcome = $2, last_seen_at = NOW()
		WHERE key = $1 AND outcome = $3
	`, key, outcome, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("completing idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx,
		"SELECT outcome FROM idempotency_records WHERE key = $1", key,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("reading idempotency outcome: %w", err)
	}

	if current == outcome {
		return nil
	}
	return fmt.Errorf("key %s has outcome %s, refusing %s: %w", key, current, outcome, domain.ErrOutcomeConflict)
}
