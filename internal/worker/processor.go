package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/downstream"
	"github.com/Johnobhoy88/integration-core/internal/engine"
	"github.com/Johnobhoy88/integration-core/internal/outcome"
)

// Resolver receives the terminal result of an operation.
type Resolver interface {
	Resolve(ctx context.Context, res outcome.OperationResult) error
}

// Processor runs the business action for one accepted event: rate-limited,
// circuit-guarded, retried, and finally routed to its outcome.
type Processor struct {
	adapters map[domain.SourceType]downstream.Adapter
	limiter  *engine.RateLimiter
	breaker  *engine.CircuitBreaker
	executor *engine.RetryExecutor
	resolver Resolver
	logger   *slog.Logger

	// opTimeout is the wall-clock budget for the whole operation including
	// retries and backoff sleeps.
	opTimeout time.Duration
}

func NewProcessor(
	adapters map[domain.SourceType]downstream.Adapter,
	limiter *engine.RateLimiter,
	breaker *engine.CircuitBreaker,
	executor *engine.RetryExecutor,
	resolver Resolver,
	opTimeout time.Duration,
	logger *slog.Logger,
) *Processor {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Minute
	}
	return &Processor{
		adapters:  adapters,
		limiter:   limiter,
		breaker:   breaker,
		executor:  executor,
		resolver:  resolver,
		logger:    logger,
		opTimeout: opTimeout,
	}
}

// Process executes one job to its terminal outcome. It never returns an
// error: every path, including misconfiguration, ends at the outcome router.
func (p *Processor) Process(ctx context.Context, job engine.ProcessJob) {
	start := time.Now()

	attempts := 0
	var opErr error

	adapter, ok := p.adapters[job.Source]
	if !ok {
		attempts = 1
		opErr = &domain.IntegrationError{
			Err: fmt.Errorf("no downstream adapter configured for source %s", job.Source),
		}
	} else {
		ev := domain.InboundEvent{
			ID:         job.EventID,
			SourceType: job.Source,
			EventType:  job.EventType,
			Payload:    job.Payload,
			ReceivedAt: job.EnqueuedAt,
		}

		opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
		attempts, opErr = p.executor.Execute(opCtx, job.OperationID, func(ctx context.Context) error {
			return p.callDownstream(ctx, adapter, ev)
		})
		cancel()
	}

	err := p.resolver.Resolve(ctx, outcome.OperationResult{
		OperationID:    job.OperationID,
		IdempotencyKey: job.IdempotencyKey,
		Source:         job.Source,
		EventType:      job.EventType,
		Attempts:       attempts,
		Duration:       time.Since(start),
		Err:            opErr,
	})
	if err != nil {
		p.logger.Error("failed to resolve operation outcome",
			"error", err,
			"operation_id", job.OperationID,
		)
	}
}

// callDownstream is one attempt: acquire a token for the adapter's bucket,
// check the circuit, make the call, and feed the circuit the result.
func (p *Processor) callDownstream(ctx context.Context, adapter downstream.Adapter, ev domain.InboundEvent) error {
	resource := adapter.Resource()

	if err := p.limiter.Acquire(ctx, resource, 1); err != nil {
		if errors.Is(err, engine.ErrUnknownBucket) || errors.Is(err, engine.ErrExceedsCapacity) {
			// Configuration errors must fail fast, not burn the retry budget.
			return &domain.IntegrationError{Err: err}
		}
		return err
	}

	if !p.breaker.Allow(ctx, resource) {
		return &domain.IntegrationError{
			Retryable: true,
			Err:       fmt.Errorf("circuit open for resource %s", resource),
		}
	}

	if err := adapter.Call(ctx, ev); err != nil {
		p.breaker.RecordFailure(ctx, resource)
		return err
	}

	p.breaker.RecordSuccess(ctx, resource)
	return nil
}
