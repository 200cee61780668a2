package api

import (
	"context"
	"net/http"

	"github.com/Johnobhoy88/integration-core/internal/store"
)

// MetricsReader aggregates pipeline statistics.
type MetricsReader interface {
	GetPipelineMetrics(ctx context.Context) (*store.PipelineMetrics, error)
}

// QueueDepther reports how many jobs are waiting for workers.
type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}

type MetricsHandler struct {
	store MetricsReader
	queue QueueDepther
}

func NewMetricsHandler(s MetricsReader, q QueueDepther) *MetricsHandler {
	return &MetricsHandler{store: s, queue: q}
}

func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetPipelineMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.queue.Depth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.PipelineMetrics
		QueueDepth int64 `json:"queue_depth"`
	}
	respondJSON(w, http.StatusOK, metricsResponse{
		PipelineMetrics: *metrics,
		QueueDepth:      queueDepth,
	})
}
