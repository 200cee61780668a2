package outcome

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/notify"
	"github.com/Johnobhoy88/integration-core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore backs the router and the notify dispatcher with in-memory state.
type fakeStore struct {
	records    map[string]domain.OutcomeRecord
	completed  map[string]string
	marked     [][2]string
	completeFn func(key, outcome string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   map[string]domain.OutcomeRecord{},
		completed: map[string]string{},
	}
}

func (s *fakeStore) InsertOutcomeRecord(_ context.Context, rec domain.OutcomeRecord) (bool, error) {
	if _, ok := s.records[rec.OperationID]; ok {
		return false, nil
	}
	s.records[rec.OperationID] = rec
	return true, nil
}

func (s *fakeStore) GetOutcomeRecord(_ context.Context, operationID string) (*domain.OutcomeRecord, error) {
	rec, ok := s.records[operationID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) CompleteIdempotencyKey(_ context.Context, key, outcome string) error {
	if s.completeFn != nil {
		return s.completeFn(key, outcome)
	}
	s.completed[key] = outcome
	return nil
}

func (s *fakeStore) MarkNotified(_ context.Context, operationID, channel string) error {
	s.marked = append(s.marked, [2]string{operationID, channel})
	rec := s.records[operationID]
	rec.NotifiedChannels = append(rec.NotifiedChannels, channel)
	s.records[operationID] = rec
	return nil
}

type countingChannel struct {
	name  string
	calls int
}

func (c *countingChannel) Name() string { return c.name }

func (c *countingChannel) Send(context.Context, notify.Message) error {
	c.calls++
	return nil
}

func newTestRouter(s *fakeStore, channels ...notify.Channel) *Router {
	dispatcher := notify.NewDispatcher(channels, s, testLogger())
	return NewRouter(s, dispatcher, testLogger())
}

func successResult() OperationResult {
	return OperationResult{
		OperationID:    "op-1",
		IdempotencyKey: "commerce-order:d-1",
		Source:         domain.SourceCommerceOrder,
		EventType:      "order.updated",
		Attempts:       2,
		Duration:       340 * time.Millisecond,
	}
}

func TestResolveSuccessRecordsAndNotifies(t *testing.T) {
	s := newFakeStore()
	ch := &countingChannel{name: "chat"}
	r := newTestRouter(s, ch)

	if err := r.Resolve(context.Background(), successResult()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	rec, ok := s.records["op-1"]
	if !ok {
		t.Fatal("expected an outcome record")
	}
	if rec.Status != domain.OutcomeSuccess {
		t.Errorf("expected success status, got %s", rec.Status)
	}
	if rec.Detail.Attempts != 2 || rec.Detail.DurationMs != 340 {
		t.Errorf("unexpected detail: %+v", rec.Detail)
	}

	if s.completed["commerce-order:d-1"] != store.IdempotencySucceeded {
		t.Errorf("expected idempotency key completed succeeded, got %v", s.completed)
	}
	if ch.calls != 1 {
		t.Errorf("expected exactly one notification, got %d", ch.calls)
	}
}

func TestResolveFailureRecordsErrorClass(t *testing.T) {
	s := newFakeStore()
	r := newTestRouter(s)

	res := successResult()
	res.Err = &domain.ExhaustedError{Attempts: 5, Err: errors.New("downstream 503")}
	res.Attempts = 5

	if err := r.Resolve(context.Background(), res); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	rec := s.records["op-1"]
	if rec.Status != domain.OutcomeError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	if rec.Detail.ErrorClass != "retries_exhausted" {
		t.Errorf("expected retries_exhausted, got %s", rec.Detail.ErrorClass)
	}
	if s.completed["commerce-order:d-1"] != store.IdempotencyFailed {
		t.Errorf("expected idempotency key completed failed, got %v", s.completed)
	}
}

func TestResolveTwiceNotifiesOnce(t *testing.T) {
	s := newFakeStore()
	ch := &countingChannel{name: "chat"}
	r := newTestRouter(s, ch)

	ctx := context.Background()
	if err := r.Resolve(ctx, successResult()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// A redelivered job resolves the same operation again. The existing
	// record wins and the channel must not be re-alerted.
	if err := r.Resolve(ctx, successResult()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if len(s.records) != 1 {
		t.Errorf("expected one record, got %d", len(s.records))
	}
	if ch.calls != 1 {
		t.Errorf("expected one notification across both resolves, got %d", ch.calls)
	}
}

func TestResolveKeepsFirstOutcomeOnConflict(t *testing.T) {
	s := newFakeStore()
	s.completeFn = func(key, outcome string) error {
		return domain.ErrOutcomeConflict
	}
	r := newTestRouter(s)

	// A conflicting terminal outcome is logged, not propagated: the first
	// recorded outcome stays authoritative.
	if err := r.Resolve(context.Background(), successResult()); err != nil {
		t.Fatalf("resolve should swallow the conflict: %v", err)
	}
}
