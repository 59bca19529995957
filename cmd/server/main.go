// Package main is the entrypoint for the trip planner API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/tripplanner/internal/ai"
	"github.com/kiranshivaraju/tripplanner/internal/api"
	"github.com/kiranshivaraju/tripplanner/internal/api/handler"
	mw "github.com/kiranshivaraju/tripplanner/internal/api/middleware"
	"github.com/kiranshivaraju/tripplanner/internal/cache"
	"github.com/kiranshivaraju/tripplanner/internal/config"
	"github.com/kiranshivaraju/tripplanner/internal/jobs"
	"github.com/kiranshivaraju/tripplanner/internal/metrics"
	"github.com/kiranshivaraju/tripplanner/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store_backend", cfg.Store.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	// 3. Job store: durable backend behind the in-memory fallback
	durable, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	jobStore := store.NewFallbackStore(durable, store.FallbackConfig{
		MaxRetries:          cfg.Store.MaxRetries,
		BaseDelay:           cfg.Store.RetryBaseDelay,
		HealthCheckInterval: cfg.Store.HealthCheckInterval,
	}, store.WithStateHook(rec.StoreDegraded))
	rec.StoreDegraded(jobStore.Degraded())
	go jobStore.Run(ctx)

	// 4. Optional Redis cache
	var (
		jobCache    cache.Cache = cache.NopCache{}
		cachePinger handler.Pinger
	)
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		jobCache, cachePinger = redisCache, redisCache
	} else {
		slog.Info("REDIS_URL not set, status cache and rate limiting disabled")
	}

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name(), "model", aiProvider.Model())

	invoker := ai.NewInvoker(aiProvider, ai.NewTimeoutPolicy(cfg.AI), cfg.Server.Production(),
		cfg.AI.Temperature, cfg.AI.MaxTokens)

	// 6. Worker queue and lifecycle manager
	queue := jobs.NewQueue(cfg.Worker.Count, cfg.Worker.QueueSize, rec.QueueDepth)
	queue.Start()

	manager := jobs.NewManager(jobStore, jobCache, invoker, queue, rec, jobs.Config{
		NormalizeOnServer: cfg.Server.NormalizeOnServer,
	})

	// 7. Build router with dependencies
	admin := mw.NewAdminAuth(cfg.Admin.APIKeyHash)
	if !admin.Enabled() {
		slog.Info("ADMIN_API_KEY_HASH not set, admin routes disabled")
	}

	deps := api.Dependencies{
		Admin:     admin,
		RateLimit: mw.NewRateLimit(jobCache, cfg.Server.RateLimitPerMin),

		HealthHandler:  handler.NewHealthHandler(jobStore, cachePinger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		SubmitHandler:  handler.NewSubmitHandler(manager),
		StatusHandler:  handler.NewStatusHandler(manager),
		ListJobs:       handler.NewListJobsHandler(jobStore),
		JobStats:       handler.NewJobStatsHandler(jobStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown: %w", err)
	}

	// In-flight generations still write their terminal status.
	slog.Info("draining generation queue", "pending", queue.Len())
	if err := queue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("generation queue did not drain in time", "error", err)
	}

	if serveErr != nil {
		return serveErr
	}
	slog.Info("server stopped gracefully")
	return nil
}

// openStore opens the configured durable backend. The memory backend returns
// a nil store, which keeps the fallback store on memory for good.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return store.NewPostgresStore(pool), pool.Close, nil

	case "sqlite":
		st, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("sqlite store opened", "path", cfg.Store.SQLitePath)
		return st, func() { _ = st.Close() }, nil

	default:
		slog.Warn("no durable job store configured, jobs are kept in memory only")
		return nil, func() {}, nil
	}
}
