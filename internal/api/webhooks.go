package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/engine"
	"github.com/Johnobhoy88/integration-core/internal/store"
	"github.com/Johnobhoy88/integration-core/internal/verify"
)

// maxWebhookBody caps how much of an inbound body we buffer.
const maxWebhookBody = 1 << 20

// SourceRoute holds the per-source ingestion parameters.
type SourceRoute struct {
	Scheme           verify.Scheme
	DeliveryIDHeader string
	EventTypeHeader  string
}

// WebhookStore is the durable state the ingestion path needs.
type WebhookStore interface {
	ReserveIdempotencyKey(ctx context.Context, key, operationID string) (store.Reservation, error)
	ReleaseIdempotencyKey(ctx context.Context, key, operationID string) error
	InsertInboundEvent(ctx context.Context, ev domain.InboundEvent) error
	GetOutcomeRecord(ctx context.Context, operationID string) (*domain.OutcomeRecord, error)
}

// Enqueuer hands accepted events to the asynchronous pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, job engine.ProcessJob) error
}

// WebhookHandler is the ingestion boundary: verify, dedup, persist, enqueue,
// acknowledge. Business processing happens asynchronously so upstream
// retries never pile up behind slow downstreams.
type WebhookHandler struct {
	routes map[domain.SourceType]SourceRoute
	store  WebhookStore
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

func NewWebhookHandler(routes map[domain.SourceType]SourceRoute, s WebhookStore, queue Enqueuer, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		routes: routes,
		store:  s,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Receive handles POST /api/v1/webhooks/{source}.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	source, ok := domain.ParseSourceType(chi.URLParam(r, "source"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown webhook source")
		return
	}
	route, ok := h.routes[source]
	if !ok {
		respondError(w, http.StatusNotFound, "webhook source not configured")
		return
	}

	// The raw body is the unit the signature covers; read it before any
	// decoding and keep it byte-exact.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := route.Scheme.Verify(body, r.Header, h.now()); err != nil {
		h.logger.Warn("webhook signature rejected", "source", source, "reason", err.Error())
		respondError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	if _, err := domain.ParsePayload(source, body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	deliveryID := r.Header.Get(route.DeliveryIDHeader)
	eventType := r.Header.Get(route.EventTypeHeader)
	if eventType == "" {
		eventType = string(source)
	}

	key := domain.DeriveIdempotencyKey(source, deliveryID, body)
	operationID := uuid.NewString()

	res, err := h.store.ReserveIdempotencyKey(r.Context(), key, operationID)
	if err != nil {
		h.logger.Error("failed to reserve idempotency key", "error", err, "source", source)
		respondError(w, http.StatusInternalServerError, "failed to record delivery")
		return
	}

	if !res.IsNew {
		h.respondDuplicate(w, r, res)
		return
	}

	event := domain.InboundEvent{
		ID:         uuid.NewString(),
		SourceType: source,
		EventType:  eventType,
		DeliveryID: deliveryID,
		Payload:    body,
		ReceivedAt: h.now().UTC(),
	}
	if err := h.store.InsertInboundEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to persist inbound event", "error", err, "source", source)
		h.releaseReservation(r.Context(), key, operationID)
		respondError(w, http.StatusInternalServerError, "failed to persist event")
		return
	}

	job := engine.ProcessJob{
		OperationID:    operationID,
		EventID:        event.ID,
		Source:         source,
		EventType:      eventType,
		IdempotencyKey: key,
		Payload:        body,
		EnqueuedAt:     event.ReceivedAt,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("failed to enqueue process job",
			"error", err,
			"operation_id", operationID,
			"idempotency_key", key,
		)
		h.releaseReservation(r.Context(), key, operationID)
		respondError(w, http.StatusInternalServerError, "failed to queue event for processing")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"operation_id": operationID,
		"event_id":     event.ID,
		"status":       "accepted",
	})
}

// releaseReservation undoes a reservation whose delivery failed before a job
// was in flight. Without this, the key would stay pending with nothing to
// complete it and every redelivery would be rejected 409 forever. Detached
// context: the release must run even if the client already hung up.
func (h *WebhookHandler) releaseReservation(ctx context.Context, key, operationID string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.store.ReleaseIdempotencyKey(rctx, key, operationID); err != nil {
		h.logger.Error("failed to release idempotency reservation",
			"error", err,
			"idempotency_key", key,
			"operation_id", operationID,
		)
	}
}

// respondDuplicate answers a redelivery: 409 while the first delivery is
// still in flight, otherwise 200 with the recorded result summary.
func (h *WebhookHandler) respondDuplicate(w http.ResponseWriter, r *http.Request, res store.Reservation) {
	if res.Outcome == store.IdempotencyPending {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":        domain.ErrDuplicateInFlight.Error(),
			"operation_id": res.OperationID,
		})
		return
	}

	rec, err := h.store.GetOutcomeRecord(r.Context(), res.OperationID)
	if err != nil {
		h.logger.Error("failed to load cached outcome", "error", err, "operation_id", res.OperationID)
		respondError(w, http.StatusInternalServerError, "failed to load recorded result")
		return
	}

	summary := map[string]any{
		"operation_id": res.OperationID,
		"duplicate":    true,
		"outcome":      res.Outcome,
	}
	if rec != nil {
		summary["status"] = rec.Status
		summary["detail"] = rec.Detail
	}
	respondJSON(w, http.StatusOK, summary)
}
