package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/redis/go-redis/v9"
)

const processQueueKey = "process_queue"

// ProcessJob is one accepted webhook delivery queued for asynchronous
// processing. The ingestion handler acknowledges upstream quickly and the
// worker pool picks the job up from here.
type ProcessJob struct {
	OperationID    string            `json:"operation_id"`
	EventID        string            `json:"event_id"`
	Source         domain.SourceType `json:"source"`
	EventType      string            `json:"event_type"`
	IdempotencyKey string            `json:"idempotency_key"`
	Payload        json.RawMessage   `json:"payload"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

// Queue is a Redis sorted set keyed by ready-at time. Claiming removes the
// member atomically, so concurrent dispatcher instances never hand the same
// job to two workers.
type Queue struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewQueue(redisClient *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{redisClient: redisClient, logger: logger}
}

// Enqueue adds a job, ready immediately.
func (q *Queue) Enqueue(ctx context.Context, job ProcessJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling process job: %w", err)
	}

	err = q.redisClient.ZAdd(ctx, processQueueKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: string(raw),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing process job: %w", err)
	}

	q.logger.Info("job enqueued",
		"operation_id", job.OperationID,
		"source", job.Source,
		"event_type", job.EventType,
	)
	return nil
}

// Claim fetches up to limit ready jobs, removing each from the queue. A job
// whose ZRem returns 0 was already claimed by another instance and is skipped.
func (q *Queue) Claim(ctx context.Context, limit int64) ([]ProcessJob, error) {
	now := float64(time.Now().UnixMicro())

	results, err := q.redisClient.ZRangeByScore(ctx, processQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling process queue: %w", err)
	}

	var jobs []ProcessJob
	for _, member := range results {
		removed, err := q.redisClient.ZRem(ctx, processQueueKey, member).Result()
		if err != nil {
			q.logger.Error("failed to remove job from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var job ProcessJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("failed to unmarshal job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Depth returns the number of jobs waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, processQueueKey).Result()
}
