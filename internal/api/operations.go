package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// OperationStore reads operation audit state.
type OperationStore interface {
	GetOutcomeRecord(ctx context.Context, operationID string) (*domain.OutcomeRecord, error)
	ListOutcomeRecords(ctx context.Context, status string, limit int) ([]domain.OutcomeRecord, error)
	ListRetryAttempts(ctx context.Context, operationID string) ([]domain.RetryAttempt, error)
}

type OperationHandler struct {
	store OperationStore
}

func NewOperationHandler(s OperationStore) *OperationHandler {
	return &OperationHandler{store: s}
}

func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.ListOutcomeRecords(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetOutcomeRecord(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get operation")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "operation not found")
		return
	}

	attempts, err := h.store.ListRetryAttempts(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	type operationDetail struct {
		domain.OutcomeRecord
		Attempts []domain.RetryAttempt `json:"attempts"`
	}
	respondJSON(w, http.StatusOK, operationDetail{
		OutcomeRecord: *rec,
		Attempts:      attempts,
	})
}
