package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// limiterClock drives the limiter deterministically: sleeps advance the fake
// clock instead of blocking, and are recorded for assertions.
type limiterClock struct {
	now   time.Time
	slept []time.Duration
}

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) (*RateLimiter, *limiterClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &limiterClock{now: time.Unix(1700000000, 0)}
	rl := NewRateLimiter(client, buckets, testLogger())
	rl.now = func() time.Time { return clock.now }
	rl.sleep = func(ctx context.Context, d time.Duration) error {
		clock.slept = append(clock.slept, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return rl, clock
}

func TestRateLimiterWithinCapacity(t *testing.T) {
	rl, clock := newTestLimiter(t, map[string]BucketConfig{
		"api": {Capacity: 5, RefillPerSec: 1},
	})

	for i := 0; i < 5; i++ {
		if err := rl.Acquire(context.Background(), "api", 1); err != nil {
			t.Fatalf("acquire %d failed: %v", i+1, err)
		}
	}

	if len(clock.slept) != 0 {
		t.Errorf("expected no waits within capacity, got %v", clock.slept)
	}
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	rl, clock := newTestLimiter(t, map[string]BucketConfig{
		"api": {Capacity: 2, RefillPerSec: 10},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := rl.Acquire(ctx, "api", 1); err != nil {
			t.Fatalf("acquire %d failed: %v", i+1, err)
		}
	}

	// Bucket is empty: the next token needs 1/10s of refill.
	if err := rl.Acquire(ctx, "api", 1); err != nil {
		t.Fatalf("acquire after exhaustion failed: %v", err)
	}

	if len(clock.slept) == 0 {
		t.Fatal("expected the third acquire to wait")
	}
	var total time.Duration
	for _, d := range clock.slept {
		total += d
	}
	if total < 90*time.Millisecond || total > 200*time.Millisecond {
		t.Errorf("expected ~100ms wait at 10 tokens/sec, got %v", total)
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl, clock := newTestLimiter(t, map[string]BucketConfig{
		"api": {Capacity: 2, RefillPerSec: 1},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := rl.Acquire(ctx, "api", 1); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
	}

	// After 2 seconds of idle time the bucket is full again.
	clock.now = clock.now.Add(2 * time.Second)
	if err := rl.Acquire(ctx, "api", 1); err != nil {
		t.Fatalf("acquire after refill failed: %v", err)
	}
	if len(clock.slept) != 0 {
		t.Errorf("expected no wait after refill, got %v", clock.slept)
	}
}

func TestRateLimiterUnknownBucket(t *testing.T) {
	rl, _ := newTestLimiter(t, map[string]BucketConfig{
		"api": {Capacity: 5, RefillPerSec: 1},
	})

	err := rl.Acquire(context.Background(), "nope", 1)
	if !errors.Is(err, ErrUnknownBucket) {
		t.Errorf("expected ErrUnknownBucket, got %v", err)
	}
}

func TestRateLimiterExceedsCapacity(t *testing.T) {
	rl, clock := newTestLimiter(t, map[string]BucketConfig{
		"api": {Capacity: 5, RefillPerSec: 1},
	})

	err := rl.Acquire(context.Background(), "api", 6)
	if !errors.Is(err, ErrExceedsCapacity) {
		t.Errorf("expected ErrExceedsCapacity, got %v", err)
	}
	if len(clock.slept) != 0 {
		t.Errorf("impossible request must fail fast, waited %v", clock.slept)
	}
}

func TestRateLimiterBucketIsolation(t *testing.T) {
	rl, clock := newTestLimiter(t, map[string]BucketConfig{
		"a": {Capacity: 1, RefillPerSec: 1},
		"b": {Capacity: 1, RefillPerSec: 1},
	})

	ctx := context.Background()
	if err := rl.Acquire(ctx, "a", 1); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	// Draining bucket a must not make bucket b wait.
	if err := rl.Acquire(ctx, "b", 1); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if len(clock.slept) != 0 {
		t.Errorf("expected isolated buckets, got waits %v", clock.slept)
	}
}
