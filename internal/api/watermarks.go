package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// WatermarkReader reads sync cursors.
type WatermarkReader interface {
	GetWatermark(ctx context.Context, sourceName string) (domain.SyncWatermark, error)
	ListWatermarks(ctx context.Context) ([]domain.SyncWatermark, error)
}

type WatermarkHandler struct {
	store WatermarkReader
}

func NewWatermarkHandler(s WatermarkReader) *WatermarkHandler {
	return &WatermarkHandler{store: s}
}

func (h *WatermarkHandler) List(w http.ResponseWriter, r *http.Request) {
	watermarks, err := h.store.ListWatermarks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list watermarks")
		return
	}
	respondJSON(w, http.StatusOK, watermarks)
}

func (h *WatermarkHandler) Get(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	wm, err := h.store.GetWatermark(r.Context(), source)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get watermark")
		return
	}
	respondJSON(w, http.StatusOK, wm)
}
