package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/store"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Store *store.PostgresStore
	Queue interface {
		Enqueuer
		QueueDepther
	}
	Routes map[domain.SourceType]SourceRoute
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	webhookHandler := NewWebhookHandler(deps.Routes, deps.Store, deps.Queue, deps.Logger)
	operationHandler := NewOperationHandler(deps.Store)
	watermarkHandler := NewWatermarkHandler(deps.Store)
	metricsHandler := NewMetricsHandler(deps.Store, deps.Queue)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/webhooks/{source}", webhookHandler.Receive)

		r.Route("/operations", func(r chi.Router) {
			r.Get("/", operationHandler.List)
			r.Get("/{id}", operationHandler.Get)
		})

		r.Route("/watermarks", func(r chi.Router) {
			r.Get("/", watermarkHandler.List)
			r.Get("/{source}", watermarkHandler.Get)
		})

		r.Get("/metrics", metricsHandler.Get)
	})

	return r
}
