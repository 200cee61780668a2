package store

import (
	"context"
	"fmt"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) InsertInboundEvent(ctx context.Context, ev domain.InboundEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inbound_events (id, source_type, event_type, delivery_id, payload, received_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, ev.ID, ev.SourceType, ev.EventType, ev.DeliveryID, []byte(ev.Payload), ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inserting inbound event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInboundEvent(ctx context.Context, id string) (*domain.InboundEvent, error) {
	var ev domain.InboundEvent
	var deliveryID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_type, event_type, delivery_id, payload, received_at
		FROM inbound_events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.SourceType, &ev.EventType, &deliveryID, &ev.Payload, &ev.ReceivedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying inbound event: %w", err)
	}
	if deliveryID != nil {
		ev.DeliveryID = *deliveryID
	}
	return &ev, nil
}

func (s *PostgresStore) ListInboundEvents(ctx context.Context, source string, limit int) ([]domain.InboundEvent, error) {
	query := `SELECT id, source_type, event_type, delivery_id, payload, received_at FROM inbound_events`
	args := []interface{}{}
	argIdx := 1

	if source != "" {
		query += fmt.Sprintf(" WHERE source_type = $%d", argIdx)
		args = append(args, source)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying inbound events: %w", err)
	}
	defer rows.Close()

	var events []domain.InboundEvent
	for rows.Next() {
		var ev domain.InboundEvent
		var deliveryID *string
		if err := rows.Scan(&ev.ID, &ev.SourceType, &ev.EventType, &deliveryID, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound event: %w", err)
		}
		if deliveryID != nil {
			ev.DeliveryID = *deliveryID
		}
		events = append(events, ev)
	}

	if events == nil {
		events = []domain.InboundEvent{}
	}
	return events, nil
}
