package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFeed serves batches from a fixed script of pages.
type fakeFeed struct {
	name    string
	pages   map[string]page // cursor → page served for that cursor
	fetches int
	failFor int // fail the first N fetches with a retryable error
}

type page struct {
	records []domain.SyncRecord
	next    string
}

func (f *fakeFeed) Name() string     { return f.name }
func (f *fakeFeed) Resource() string { return f.name }

func (f *fakeFeed) FetchSince(_ context.Context, cursor string, _ int) ([]domain.SyncRecord, string, error) {
	f.fetches++
	if f.fetches <= f.failFor {
		return nil, "", &domain.IntegrationError{Retryable: true, Err: errors.New("feed hiccup")}
	}
	p, ok := f.pages[cursor]
	if !ok {
		return nil, cursor, nil
	}
	return p.records, p.next, nil
}

// fakeSyncStore keeps watermarks and applied records in memory.
type fakeSyncStore struct {
	cursors  map[string]string
	applied  map[string][]byte // record id → data
	batches  int
	applyErr error
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{
		cursors: map[string]string{},
		applied: map[string][]byte{},
	}
}

func (s *fakeSyncStore) GetWatermark(_ context.Context, sourceName string) (domain.SyncWatermark, error) {
	return domain.SyncWatermark{SourceName: sourceName, Cursor: s.cursors[sourceName]}, nil
}

func (s *fakeSyncStore) AdvanceWatermark(_ context.Context, sourceName, cursor string) error {
	s.cursors[sourceName] = cursor
	return nil
}

func (s *fakeSyncStore) UpsertSyncedRecords(_ context.Context, _ string, records []domain.SyncRecord) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.batches++
	for _, rec := range records {
		s.applied[rec.ID] = rec.Data
	}
	return nil
}

type fakeLock struct {
	held     bool
	acquired int
}

func (l *fakeLock) TryAcquire(context.Context, string) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	l.held = true
	return func() { l.held = false }, true, nil
}

func newTestRunner(t *testing.T, feed Feed, s *fakeSyncStore, lock Locker) *Runner {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := engine.NewRateLimiter(client, map[string]engine.BucketConfig{
		feed.Resource(): {Capacity: 100, RefillPerSec: 100},
	}, testLogger())

	executor := engine.NewRetryExecutor(nil, testLogger())
	executor.BaseDelay = time.Millisecond
	executor.MaxDelay = 2 * time.Millisecond

	return NewRunner([]Feed{feed}, s, s, lock, limiter, executor, time.Minute, testLogger())
}

func rec(id string) domain.SyncRecord {
	return domain.SyncRecord{ID: id, Data: []byte(fmt.Sprintf(`{"id":%q}`, id))}
}

func TestRunOnceDrainsFeedAndAdvances(t *testing.T) {
	feed := &fakeFeed{
		name: "orders",
		pages: map[string]page{
			"":   {records: []domain.SyncRecord{rec("r1"), rec("r2")}, next: "c1"},
			"c1": {records: []domain.SyncRecord{rec("r3")}, next: "c2"},
			// c2 has no page: the next fetch returns empty and the run stops.
		},
	}
	s := newFakeSyncStore()
	lock := &fakeLock{}

	if err := newTestRunner(t, feed, s, lock).RunOnce(context.Background(), feed); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(s.applied) != 3 {
		t.Errorf("expected 3 records applied, got %d", len(s.applied))
	}
	if s.cursors["orders"] != "c2" {
		t.Errorf("expected cursor c2, got %q", s.cursors["orders"])
	}
	if lock.held {
		t.Error("expected lock released after the run")
	}
}

func TestRunOnceEmptyFeedLeavesWatermark(t *testing.T) {
	feed := &fakeFeed{name: "orders", pages: map[string]page{}}
	s := newFakeSyncStore()
	s.cursors["orders"] = "c7"

	if err := newTestRunner(t, feed, s, &fakeLock{}).RunOnce(context.Background(), feed); err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.cursors["orders"] != "c7" {
		t.Errorf("empty batch must not move the watermark, got %q", s.cursors["orders"])
	}
	if s.batches != 0 {
		t.Errorf("expected no batches applied, got %d", s.batches)
	}
}

func TestRunOnceApplierFailureKeepsWatermark(t *testing.T) {
	feed := &fakeFeed{
		name: "orders",
		pages: map[string]page{
			"": {records: []domain.SyncRecord{rec("r1")}, next: "c1"},
		},
	}
	s := newFakeSyncStore()
	s.applyErr = errors.New("disk full")

	err := newTestRunner(t, feed, s, &fakeLock{}).RunOnce(context.Background(), feed)
	if err == nil {
		t.Fatal("expected the apply failure to surface")
	}
	if s.cursors["orders"] != "" {
		t.Errorf("failed apply must not advance the watermark, got %q", s.cursors["orders"])
	}
}

func TestRunOnceReplaysBatchAfterCrash(t *testing.T) {
	feed := &fakeFeed{
		name: "orders",
		pages: map[string]page{
			"": {records: []domain.SyncRecord{rec("r1"), rec("r2")}, next: "c1"},
		},
	}
	s := newFakeSyncStore()
	runner := newTestRunner(t, feed, s, &fakeLock{})
	ctx := context.Background()

	// First run applies the batch and advances. Simulate the crash-replay
	// case by resetting the cursor as if the advance had been lost.
	if err := runner.RunOnce(ctx, feed); err != nil {
		t.Fatalf("first run: %v", err)
	}
	s.cursors["orders"] = ""

	if err := runner.RunOnce(ctx, feed); err != nil {
		t.Fatalf("replay run: %v", err)
	}

	// The upsert-keyed applier absorbs the duplicate batch.
	if len(s.applied) != 2 {
		t.Errorf("expected replay to leave 2 records, got %d", len(s.applied))
	}
	if s.cursors["orders"] != "c1" {
		t.Errorf("expected cursor c1 after replay, got %q", s.cursors["orders"])
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	feed := &fakeFeed{name: "orders", pages: map[string]page{
		"": {records: []domain.SyncRecord{rec("r1")}, next: "c1"},
	}}
	s := newFakeSyncStore()
	lock := &fakeLock{held: true}

	if err := newTestRunner(t, feed, s, lock).RunOnce(context.Background(), feed); err != nil {
		t.Fatalf("run: %v", err)
	}
	if feed.fetches != 0 {
		t.Errorf("expected no fetches while lock held, got %d", feed.fetches)
	}
}

func TestRunOnceRetriesTransientFetchFailures(t *testing.T) {
	feed := &fakeFeed{
		name:    "orders",
		failFor: 2,
		pages: map[string]page{
			"": {records: []domain.SyncRecord{rec("r1")}, next: "c1"},
		},
	}
	s := newFakeSyncStore()

	if err := newTestRunner(t, feed, s, &fakeLock{}).RunOnce(context.Background(), feed); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.applied) != 1 {
		t.Errorf("expected the batch applied after retries, got %d records", len(s.applied))
	}
}
