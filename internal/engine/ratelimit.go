package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUnknownBucket   = errors.New("unknown rate limit bucket")
	ErrExceedsCapacity = errors.New("requested tokens exceed bucket capacity")
)

// BucketConfig defines one named token bucket. Buckets map one-to-one onto
// downstream quotas; callers must never share a bucket across resources with
// different quotas.
type BucketConfig struct {
	Capacity     int
	RefillPerSec float64
}

// Lua script for an atomic token bucket.
// 1. Refill from elapsed time since the last refill, capped at capacity
// 2. If enough tokens, deduct and return 0 (acquired)
// 3. Otherwise persist the refreshed state and return the wait in ms
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local need = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'refilled_at')
local tokens = tonumber(state[1])
local refilled_at = tonumber(state[2])
if tokens == nil or refilled_at == nil then
    tokens = capacity
    refilled_at = now_ms
end

-- Refill is always applied before consumption is evaluated
local elapsed = now_ms - refilled_at
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate / 1000)
    refilled_at = now_ms
end

if tokens >= need then
    tokens = tokens - need
    redis.call('HSET', key, 'tokens', tokens, 'refilled_at', refilled_at)
    redis.call('PEXPIRE', key, 3600000)
    return 0
end

redis.call('HSET', key, 'tokens', tokens, 'refilled_at', refilled_at)
redis.call('PEXPIRE', key, 3600000)
return math.ceil((need - tokens) * 1000 / rate)
`)

// RateLimiter implements named token buckets in Redis so that the limit is
// shared across process instances. Acquire blocks the calling goroutine only.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	buckets     map[string]BucketConfig
	script      *redis.Script

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewRateLimiter(redisClient *redis.Client, buckets map[string]BucketConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		buckets:     buckets,
		script:      tokenBucketScript,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func bucketKey(name string) string {
	return fmt.Sprintf("tb:%s", name)
}

// Acquire waits until the bucket can supply the requested tokens, then
// deducts them. Asking for more tokens than the bucket can ever hold is a
// configuration error and fails fast instead of waiting forever.
func (rl *RateLimiter) Acquire(ctx context.Context, bucket string, tokens int) error {
	cfg, ok := rl.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %q: %w", bucket, ErrUnknownBucket)
	}
	if tokens > cfg.Capacity {
		return fmt.Errorf("bucket %q: need %d, capacity %d: %w", bucket, tokens, cfg.Capacity, ErrExceedsCapacity)
	}
	if tokens <= 0 {
		tokens = 1
	}

	key := bucketKey(bucket)
	for {
		waitMs, err := rl.script.Run(ctx, rl.redisClient, []string{key},
			rl.now().UnixMilli(), cfg.Capacity, cfg.RefillPerSec, tokens,
		).Int64()
		if err != nil {
			// Fail open — a broken Redis must not stall the whole pipeline.
			rl.logger.Error("rate limiter script failed", "error", err, "bucket", bucket)
			return nil
		}

		if waitMs == 0 {
			return nil
		}

		if err := rl.sleep(ctx, time.Duration(waitMs)*time.Millisecond); err != nil {
			return err
		}
	}
}
