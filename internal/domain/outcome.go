package domain

import "time"

// OutcomeStatus is the terminal state of a logical operation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// OutcomeDetail summarizes what happened during the operation, with enough
// context for a manual retry without digging through logs.
type OutcomeDetail struct {
	Source     string `json:"source,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Message    string `json:"message,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms"`
}

// OutcomeRecord is the single audit record produced per terminal transition.
// NotifiedChannels tracks which channels were already alerted so a re-invoked
// router never duplicates notifications.
type OutcomeRecord struct {
	OperationID      string        `json:"operation_id"`
	Status           OutcomeStatus `json:"status"`
	Detail           OutcomeDetail `json:"detail"`
	NotifiedChannels []string      `json:"notified_channels"`
	CreatedAt        time.Time     `json:"created_at"`
}

// AttemptOutcome classifies a single retry attempt.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptRetryableFailure AttemptOutcome = "retryable_failure"
	AttemptTerminalFailure  AttemptOutcome = "terminal_failure"
)

// RetryAttempt records one attempt of a retried operation. BackoffMs is the
// delay slept before this attempt (0 for the first).
type RetryAttempt struct {
	OperationID   string         `json:"operation_id"`
	AttemptNumber int            `json:"attempt_number"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	ExecutedAt    time.Time      `json:"executed_at"`
	Outcome       AttemptOutcome `json:"outcome"`
	BackoffMs     int64          `json:"backoff_ms"`
}

// SyncWatermark marks the last successfully synchronized point in a source
// feed. The cursor may be a timestamp or an opaque continuation token.
type SyncWatermark struct {
	SourceName string    `json:"source_name"`
	Cursor     string    `json:"cursor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncRecord is one record fetched from an incremental feed. Records are
// applied with upsert semantics keyed by (source, ID) so replaying a batch
// after a crash never duplicates downstream rows.
type SyncRecord struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
