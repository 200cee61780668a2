package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InsertOutcomeRecord persists the terminal record for an operation. The
// primary-key conflict guard makes the terminal transition idempotent:
// inserted is false when a record for this operation already exists, and the
// caller must then treat the existing record as authoritative.
func (s *PostgresStore) InsertOutcomeRecord(ctx context.Context, rec domain.OutcomeRecord) (bool, error) {
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return false, fmt.Errorf("marshaling outcome detail: %w", err)
	}

	channels := rec.NotifiedChannels
	if channels == nil {
		channels = []string{}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO outcome_records (operation_id, status, detail, notified_channels)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (operation_id) DO NOTHING
	`, rec.OperationID, rec.Status, detail, channels)
	if err != nil {
		return false, fmt.Errorf("inserting outcome record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetOutcomeRecord(ctx context.Context, operationID string) (*domain.OutcomeRecord, error) {
	var rec domain.OutcomeRecord
	var detail []byte
	err := s.pool.QueryRow(ctx, `
		SELECT operation_id, status, detail, notified_channels, created_at
		FROM outcome_records WHERE operation_id = $1
	`, operationID).Scan(&rec.OperationID, &rec.Status, &detail, &rec.NotifiedChannels, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying outcome record: %w", err)
	}

	if err := json.Unmarshal(detail, &rec.Detail); err != nil {
		return nil, fmt.Errorf("unmarshaling outcome detail: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListOutcomeRecords(ctx context.Context, status string, limit int) ([]domain.OutcomeRecord, error) {
	query := `SELECT operation_id, status, detail, notified_channels, created_at FROM outcome_records`
	args := []interface{}{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outcome records: %w", err)
	}
	defer rows.Close()

	var records []domain.OutcomeRecord
	for rows.Next() {
		var rec domain.OutcomeRecord
		var detail []byte
		if err := rows.Scan(&rec.OperationID, &rec.Status, &detail, &rec.NotifiedChannels, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning outcome record: %w", err)
		}
		if err := json.Unmarshal(detail, &rec.Detail); err != nil {
			return nil, fmt.Errorf("unmarshaling outcome detail: %w", err)
		}
		records = append(records, rec)
	}

	if records == nil {
		records = []domain.OutcomeRecord{}
	}
	return records, nil
}

// MarkNotified adds a channel to the record's notified set. Appending only
// when absent keeps the operation safe to repeat.
func (s *PostgresStore) MarkNotified(ctx context.Context, operationID, channel string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outcome_records
		SET notified_channels = array_append(notified_channels, $2)
		WHERE operation_id = $1 AND NOT ($2 = ANY(notified_channels))
	`, operationID, channel)
	if err != nil {
		return fmt.Errorf("marking channel notified: %w", err)
	}
	return nil
}

// RecordRetryAttempt appends one attempt record for observability.
func (s *PostgresStore) RecordRetryAttempt(ctx context.Context, a domain.RetryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO retry_attempts (operation_id, attempt_number, scheduled_at, executed_at, outcome, backoff_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.OperationID, a.AttemptNumber, a.ScheduledAt, a.ExecutedAt, a.Outcome, a.BackoffMs)
	if err != nil {
		return fmt.Errorf("inserting retry attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRetryAttempts(ctx context.Context, operationID string) ([]domain.RetryAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT operation_id, attempt_number, scheduled_at, executed_at, outcome, backoff_ms
		FROM retry_attempts
		WHERE operation_id = $1
		ORDER BY attempt_number ASC
	`, operationID)
	if err != nil {
		return nil, fmt.Errorf("querying retry attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.RetryAttempt
	for rows.Next() {
		var a domain.RetryAttempt
		if err := rows.Scan(&a.OperationID, &a.AttemptNumber, &a.ScheduledAt, &a.ExecutedAt, &a.Outcome, &a.BackoffMs); err != nil {
			return nil, fmt.Errorf("scanning retry attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	if attempts == nil {
		attempts = []domain.RetryAttempt{}
	}
	return attempts, nil
}

// PipelineMetrics holds aggregated pipeline statistics.
type PipelineMetrics struct {
	TotalOperations int     `json:"total_operations"`
	SuccessCount    int     `json:"success_count"`
	ErrorCount      int     `json:"error_count"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	TotalAttempts   int     `json:"total_attempts"`
	TotalEvents     int     `json:"total_events"`
	WatermarkCount  int     `json:"watermark_count"`
}

// GetPipelineMetrics returns aggregated statistics for the metrics endpoint.
func (s *PostgresStore) GetPipelineMetrics(ctx context.Context) (*PipelineMetrics, error) {
	var m PipelineMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'error') AS error,
			COALESCE(AVG((detail->>'duration_ms')::numeric), 0) AS avg_duration_ms
		FROM outcome_records
	`).Scan(&m.TotalOperations, &m.SuccessCount, &m.ErrorCount, &m.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("querying outcome metrics: %w", err)
	}

	if m.TotalOperations > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalOperations) * 100
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retry_attempts`).Scan(&m.TotalAttempts); err != nil {
		return nil, fmt.Errorf("querying attempt count: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inbound_events`).Scan(&m.TotalEvents); err != nil {
		return nil, fmt.Errorf("querying event count: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_watermarks`).Scan(&m.WatermarkCount); err != nil {
		return nil, fmt.Errorf("querying watermark count: %w", err)
	}

	return &m, nil
}
