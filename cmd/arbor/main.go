package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/arborhq/arbor/pkg/api"
	"github.com/arborhq/arbor/pkg/auth"
	"github.com/arborhq/arbor/pkg/config"
	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/middleware"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/queue"
	"github.com/arborhq/arbor/pkg/search"
	"github.com/arborhq/arbor/pkg/version"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting arbor API server")

	// Graph store (authoritative ACLs)
	db, err := sql.Open("postgres", cfg.Graph.PostgresURL)
	if err != nil {
		logger.WithError(err).Error("failed to open graph store")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Graph.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Graph.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Graph.ConnMaxLifetime)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("failed to ping graph store")
		os.Exit(1)
	}
	if err := graph.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	if err := search.NewIndex(db).Migrate(ctx); err != nil {
		logger.WithError(err).Error("failed to migrate search index")
		os.Exit(1)
	}

	// Sync queue
	redisClient, err := queue.NewClient(cfg.Queue.RedisURL)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()
	syncQueue := queue.New(redisClient, cfg.Queue.QueueName)

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Core services
	store := graph.NewStore(db)
	resolver := permission.NewResolver(store)
	versions := version.NewService(resolver, store)
	updater := permission.NewUpdater(store, resolver, syncQueue, logger)
	projector := permission.NewProjector(store, resolver, versions, cfg.Projector.SubmittableTemplateIDs)

	tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	audit := auth.NewAuditLogger(logger)

	server := api.NewServer(api.Deps{
		Store:     store,
		Resolver:  resolver,
		Updater:   updater,
		Projector: projector,
		Versions:  versions,
		Events:    syncQueue,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
	})

	// Middleware chain: request ID first so every log line and rate
	// limit decision carries it, then auth, then rate limiting keyed on
	// the authenticated user.
	authMW := middleware.NewAuthMiddleware(tokens, audit, false)
	rateMW := middleware.NewRateLimitMiddleware(redisClient)

	// The request logger runs inside the router so the metrics path
	// label is the route template rather than the raw URL.
	router := server.Router()
	router.Use(middleware.RequestLogger(logger, metrics))

	var handler http.Handler = router
	handler = rateMW.Handler(handler)
	handler = authMW.Handler(handler)
	handler = middleware.RequestID(handler)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port so probes bypass auth.
	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})

	go func() {
		logger.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		// Give the logger a beat to flush before exiting non-zero.
		time.Sleep(100 * time.Millisecond)
		os.Exit(1)
	}
}
