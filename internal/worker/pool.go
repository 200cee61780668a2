package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Johnobhoy88/integration-core/internal/engine"
)

// Pool manages a fixed number of worker goroutines processing pipeline jobs.
// Each job runs on its own goroutine out of the pool, so one slow or
// rate-limited operation never stalls unrelated events.
type Pool struct {
	numWorkers int
	jobs       chan engine.ProcessJob
	processor  *Processor
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, processor *Processor, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.ProcessJob, numWorkers*2),
		processor:  processor,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool.
func (p *Pool) Submit(job engine.ProcessJob) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to drain.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	// A submitted job was already claimed off the queue; dropping it here
	// would strand its idempotency key pending with nothing left to
	// complete it. Workers therefore drain the channel to the end and run
	// each job on a detached context, so shutdown cancellation never loses
	// claimed work. The processor's operation timeout still bounds each job.
	for job := range p.jobs {
		p.processor.Process(context.WithoutCancel(ctx), job)
	}
}
