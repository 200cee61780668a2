// Package syncer drives watermark-based incremental synchronization. The
// core ordering invariant: a batch is durably applied before its cursor is
// advanced, so a crash in between replays the same batch on restart and the
// upsert-keyed applier absorbs the repeat.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/engine"
)

// Feed is one incremental source. FetchSince returns the records modified
// after cursor plus the cursor to persist once the batch is applied. An
// empty batch must return the cursor unchanged.
type Feed interface {
	Name() string
	Resource() string
	FetchSince(ctx context.Context, cursor string, limit int) ([]domain.SyncRecord, string, error)
}

// Applier writes a batch with upsert semantics keyed by source record id.
type Applier interface {
	UpsertSyncedRecords(ctx context.Context, sourceName string, records []domain.SyncRecord) error
}

// WatermarkStore persists per-source cursors.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, sourceName string) (domain.SyncWatermark, error)
	AdvanceWatermark(ctx context.Context, sourceName, cursor string) error
}

// Locker serializes runs per source across process instances.
type Locker interface {
	TryAcquire(ctx context.Context, source string) (release func(), acquired bool, err error)
}

// Runner syncs each configured feed on an interval.
type Runner struct {
	feeds     []Feed
	applier   Applier
	store     WatermarkStore
	lock      Locker
	limiter   *engine.RateLimiter
	executor  *engine.RetryExecutor
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

func NewRunner(
	feeds []Feed,
	applier Applier,
	store WatermarkStore,
	lock Locker,
	limiter *engine.RateLimiter,
	executor *engine.RetryExecutor,
	interval time.Duration,
	logger *slog.Logger,
) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		feeds:     feeds,
		applier:   applier,
		store:     store,
		lock:      lock,
		limiter:   limiter,
		executor:  executor,
		logger:    logger,
		batchSize: 100,
		interval:  interval,
	}
}

// Run loops until the context is cancelled, syncing every feed each tick.
func (r *Runner) Run(ctx context.Context) {
	if len(r.feeds) == 0 {
		return
	}
	r.logger.Info("sync runner started", "feeds", len(r.feeds), "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sync runner stopping")
			return
		case <-ticker.C:
			for _, feed := range r.feeds {
				if err := r.RunOnce(ctx, feed); err != nil {
					r.logger.Error("sync run failed", "error", err, "source", feed.Name())
				}
			}
		}
	}
}

// RunOnce drains one feed: repeatedly fetch from the current watermark,
// apply, then advance, until a batch comes back empty. If another run holds
// the source lock, it returns immediately without touching anything.
func (r *Runner) RunOnce(ctx context.Context, feed Feed) error {
	release, acquired, err := r.lock.TryAcquire(ctx, feed.Name())
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.Debug("sync already running elsewhere", "source", feed.Name())
		return nil
	}
	defer release()

	for {
		wm, err := r.store.GetWatermark(ctx, feed.Name())
		if err != nil {
			return err
		}

		var records []domain.SyncRecord
		var nextCursor string

		operationID := "sync-" + uuid.NewString()
		_, err = r.executor.Execute(ctx, operationID, func(ctx context.Context) error {
			if err := r.limiter.Acquire(ctx, feed.Resource(), 1); err != nil {
				return err
			}
			var ferr error
			records, nextCursor, ferr = feed.FetchSince(ctx, wm.Cursor, r.batchSize)
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetching batch for %s: %w", feed.Name(), err)
		}

		if len(records) == 0 {
			// Nothing new: leave the watermark untouched.
			return nil
		}

		// Apply durably before advancing. A crash here replays this batch.
		if err := r.applier.UpsertSyncedRecords(ctx, feed.Name(), records); err != nil {
			return fmt.Errorf("applying batch for %s: %w", feed.Name(), err)
		}

		if nextCursor == "" || nextCursor == wm.Cursor {
			return nil
		}
		if err := r.store.AdvanceWatermark(ctx, feed.Name(), nextCursor); err != nil {
			return fmt.Errorf("advancing watermark for %s: %w", feed.Name(), err)
		}

		r.logger.Info("sync batch applied",
			"source", feed.Name(),
			"records", len(records),
			"cursor", nextCursor,
		)
	}
}
