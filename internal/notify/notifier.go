// Package notify delivers outcome notifications. Delivery is best-effort and
// strictly decoupled from the business outcome: a channel failure is logged,
// never re-reported as an operation failure.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// Message is the channel-agnostic rendering of an outcome. Channels format
// it further as plain text, rich markup, or a structured payload.
type Message struct {
	OperationID string
	Status      domain.OutcomeStatus
	Subject     string
	Body        string
}

// Channel delivers a rendered message. Email, chat, and paging are
// interchangeable implementations of this one interface.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Store records which channels were already notified for an operation.
type Store interface {
	MarkNotified(ctx context.Context, operationID, channel string) error
}

// Render builds the notification message from an outcome record. The body
// carries the operation id, error class, and attempt counts so a failure can
// be retried manually without re-deriving context from logs.
func Render(rec domain.OutcomeRecord) Message {
	var subject, body string
	switch rec.Status {
	case domain.OutcomeSuccess:
		subject = fmt.Sprintf("operation %s succeeded", rec.OperationID)
		body = fmt.Sprintf(
			"Operation %s (%s %s) completed successfully after %d attempt(s) in %dms.",
			rec.OperationID, rec.Detail.Source, rec.Detail.EventType,
			rec.Detail.Attempts, rec.Detail.DurationMs,
		)
	default:
		subject = fmt.Sprintf("operation %s failed", rec.OperationID)
		body = fmt.Sprintf(
			"Operation %s (%s %s) failed with class %s after %d attempt(s) in %dms: %s\n"+
				"To retry manually, re-submit the original delivery; operation id %s is the audit key.",
			rec.OperationID, rec.Detail.Source, rec.Detail.EventType,
			rec.Detail.ErrorClass, rec.Detail.Attempts, rec.Detail.DurationMs,
			rec.Detail.Message, rec.OperationID,
		)
	}
	return Message{
		OperationID: rec.OperationID,
		Status:      rec.Status,
		Subject:     subject,
		Body:        body,
	}
}

// Dispatcher sends one notification per configured channel, skipping those
// already recorded in the outcome's notified set.
type Dispatcher struct {
	channels   []Channel
	store      Store
	logger     *slog.Logger
	retryDelay time.Duration

	sleep func(context.Context, time.Duration) error
}

func NewDispatcher(channels []Channel, store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		channels:   channels,
		store:      store,
		logger:     logger,
		retryDelay: 2 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Dispatch notifies every channel not yet in rec.NotifiedChannels. Each
// channel gets two attempts separated by a fixed short delay. Successes are
// recorded so a re-invoked router never duplicates alerts.
func (d *Dispatcher) Dispatch(ctx context.Context, rec domain.OutcomeRecord) {
	already := make(map[string]bool, len(rec.NotifiedChannels))
	for _, ch := range rec.NotifiedChannels {
		already[ch] = true
	}

	msg := Render(rec)

	for _, ch := range d.channels {
		if already[ch.Name()] {
			continue
		}

		if err := d.sendWithRetry(ctx, ch, msg); err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", ch.Name(),
				"operation_id", rec.OperationID,
				"error", err,
			)
			continue
		}

		if err := d.store.MarkNotified(ctx, rec.OperationID, ch.Name()); err != nil {
			d.logger.Error("failed to record notified channel",
				"channel", ch.Name(),
				"operation_id", rec.OperationID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, msg Message) error {
	err := ch.Send(ctx, msg)
	if err == nil {
		return nil
	}

	if serr := d.sleep(ctx, d.retryDelay); serr != nil {
		return err
	}
	return ch.Send(ctx, msg)
}
