package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Johnobhoy88/integration-core/internal/api"
	"github.com/Johnobhoy88/integration-core/internal/config"
	"github.com/Johnobhoy88/integration-core/internal/domain"
	"github.com/Johnobhoy88/integration-core/internal/downstream"
	"github.com/Johnobhoy88/integration-core/internal/engine"
	"github.com/Johnobhoy88/integration-core/internal/notify"
	"github.com/Johnobhoy88/integration-core/internal/outcome"
	"github.com/Johnobhoy88/integration-core/internal/store"
	"github.com/Johnobhoy88/integration-core/internal/syncer"
	"github.com/Johnobhoy88/integration-core/internal/verify"
	"github.com/Johnobhoy88/integration-core/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	rdb, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// One bucket, one adapter, one webhook route per configured source.
	buckets := make(map[string]engine.BucketConfig, len(cfg.Sources))
	adapters := make(map[domain.SourceType]downstream.Adapter, len(cfg.Sources))
	routes := make(map[domain.SourceType]api.SourceRoute, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		source, ok := domain.ParseSourceType(name)
		if !ok {
			logger.Error("unknown source in config", "source", name)
			os.Exit(1)
		}

		buckets[name] = engine.BucketConfig{
			Capacity:     sc.RateCapacity,
			RefillPerSec: sc.RateRefillPerSec,
		}
		if sc.DownstreamURL != "" {
			adapters[source] = downstream.NewHTTPAdapter(name, sc.DownstreamURL, 10*time.Second, logger)
		}
		routes[source] = api.SourceRoute{
			Scheme: verify.Scheme{
				Secret:          sc.Secret,
				SignatureHeader: sc.SignatureHeader,
				TimestampHeader: sc.TimestampHeader,
				MaxSkew:         cfg.MaxSkew,
			},
			DeliveryIDHeader: sc.DeliveryIDHeader,
			EventTypeHeader:  sc.EventTypeHeader,
		}
	}

	var feeds []syncer.Feed
	for _, fc := range cfg.Feeds {
		buckets[fc.Name] = engine.BucketConfig{Capacity: 10, RefillPerSec: 5}
		feeds = append(feeds, syncer.NewHTTPFeed(fc.Name, fc.Name, fc.URL, 30*time.Second))
	}

	limiter := engine.NewRateLimiter(rdb.Client(), buckets, logger)
	breaker := engine.NewCircuitBreaker(rdb.Client(), logger)
	executor := engine.NewRetryExecutor(pg, logger)
	queue := engine.NewQueue(rdb.Client(), logger)
	syncLock := engine.NewSyncLock(rdb.Client(), 5*time.Minute, logger)

	var channels []notify.Channel
	if cfg.Notify.ChatWebhookURL != "" {
		channels = append(channels, notify.NewChatChannel(cfg.Notify.ChatWebhookURL))
	}
	if cfg.Notify.SMTPAddr != "" && len(cfg.Notify.EmailTo) > 0 {
		channels = append(channels, notify.NewEmailChannel(
			cfg.Notify.SMTPAddr,
			cfg.Notify.EmailFrom,
			cfg.Notify.EmailTo,
			cfg.Notify.SMTPUsername,
			cfg.Notify.SMTPPassword,
		))
	}
	notifier := notify.NewDispatcher(channels, pg, logger)
	router := outcome.NewRouter(pg, notifier, logger)

	processor := worker.NewProcessor(adapters, limiter, breaker, executor, router, cfg.OperationTimeout, logger)
	pool := worker.NewPool(cfg.NumWorkers, processor, logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(queue, pool, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	runner := syncer.NewRunner(feeds, pg, pg, syncLock, limiter, executor, cfg.SyncInterval, logger)
	go runner.Run(ctx)

	handler := api.NewRouter(api.RouterDeps{
		Store:  pg,
		Queue:  queue,
		Routes: routes,
		Logger: logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"sources", len(routes),
			"feeds", len(feeds),
			"workers", cfg.NumWorkers,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Stop claiming new jobs and wait for the dispatcher to return before
	// closing the pool: a submit racing the channel close would panic, and
	// any claimed job left unprocessed is gone from the queue for good.
	cancel()
	<-dispatcherDone
	pool.Stop()

	logger.Info("shutdown complete")
}
