package engine

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBreaker(t *testing.T) (*CircuitBreaker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCircuitBreaker(client, testLogger()), mr
}

// backdateFailure rewrites last_failed_at so the cooldown appears elapsed
// without sleeping through it.
func backdateFailure(t *testing.T, mr *miniredis.Miniredis, resource string, age time.Duration) {
	t.Helper()
	mr.HSet(circuitKey(resource), "last_failed_at",
		strconv.FormatInt(time.Now().Add(-age).Unix(), 10))
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	if !cb.Allow(ctx, "api") {
		t.Fatal("expected a fresh circuit to allow calls")
	}

	for i := 0; i < cb.failureThreshold; i++ {
		if !cb.Allow(ctx, "api") {
			t.Fatalf("circuit opened early after %d failures", i)
		}
		cb.RecordFailure(ctx, "api")
	}

	if cb.Allow(ctx, "api") {
		t.Error("expected circuit open after reaching the failure threshold")
	}
	if state := cb.State(ctx, "api"); state.State != StateOpen {
		t.Errorf("expected open state, got %s", state.State)
	}
}

func TestCircuitBreakerHalfOpenProbeRecovers(t *testing.T) {
	cb, mr := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < cb.failureThreshold; i++ {
		cb.RecordFailure(ctx, "api")
	}
	backdateFailure(t, mr, "api", cb.cooldownPeriod+time.Second)

	// Cooldown elapsed: one probe is allowed.
	if !cb.Allow(ctx, "api") {
		t.Fatal("expected probe call after cooldown")
	}

	cb.RecordSuccess(ctx, "api")

	if !cb.Allow(ctx, "api") {
		t.Error("expected circuit closed after successful probe")
	}
	if state := cb.State(ctx, "api"); state.State != StateClosed || state.Failures != 0 {
		t.Errorf("expected closed circuit with zero failures, got %+v", state)
	}
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb, mr := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < cb.failureThreshold; i++ {
		cb.RecordFailure(ctx, "api")
	}
	backdateFailure(t, mr, "api", cb.cooldownPeriod+time.Second)

	if !cb.Allow(ctx, "api") {
		t.Fatal("expected probe call after cooldown")
	}

	cb.RecordFailure(ctx, "api")

	if cb.Allow(ctx, "api") {
		t.Error("expected circuit re-opened after failed probe")
	}
}

func TestCircuitBreakerResourcesAreIndependent(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < cb.failureThreshold; i++ {
		cb.RecordFailure(ctx, "flaky")
	}

	if cb.Allow(ctx, "flaky") {
		t.Error("expected flaky circuit open")
	}
	if !cb.Allow(ctx, "healthy") {
		t.Error("expected healthy circuit unaffected")
	}
}
