package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/downstream"
	"github.com/Johnobhoy88/integration-core/internal/engine"
)

func TestPoolDrainsSubmittedJobsAfterCancel(t *testing.T) {
	p, resolver := newTestProcessor(t, map[domain.SourceType]downstream.Adapter{})
	pool := NewPool(2, p, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	const n = 10
	for i := 0; i < n; i++ {
		pool.Submit(engine.ProcessJob{
			OperationID:    fmt.Sprintf("op-%d", i),
			EventID:        fmt.Sprintf("ev-%d", i),
			Source:         domain.SourceCommerceOrder,
			EventType:      "order.updated",
			IdempotencyKey: fmt.Sprintf("commerce-order:d-%d", i),
			Payload:        json.RawMessage(`{}`),
		})
	}

	// Cancellation must not drop jobs still buffered in the channel: each
	// one was already claimed off the queue, so losing it here would leave
	// its idempotency key pending forever.
	cancel()
	pool.Stop()

	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	if len(resolver.results) != n {
		t.Fatalf("expected all %d submitted jobs resolved, got %d", n, len(resolver.results))
	}
}

func TestDispatcherReturnsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := engine.NewQueue(client, testLogger())
	p, _ := newTestProcessor(t, map[domain.SourceType]downstream.Adapter{})
	pool := NewPool(1, p, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	d := NewDispatcher(queue, pool, testLogger())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()

	// The shutdown sequence waits on this return before closing the pool's
	// jobs channel; a dispatcher that kept polling could submit into a
	// closed channel.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not return after cancel")
	}

	pool.Stop()
}
