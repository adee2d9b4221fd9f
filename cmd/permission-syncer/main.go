package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/arborhq/arbor/pkg/async"
	"github.com/arborhq/arbor/pkg/config"
	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/queue"
	"github.com/arborhq/arbor/pkg/search"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	concurrency       = flag.Int("concurrency", 0, "Number of concurrent sync consumers (0 = use ARBOR_WORKER_CONCURRENCY)")
	reconcileSchedule = flag.String("reconcile-schedule", "", "Cron schedule for the full reconciliation sweep (empty = use ARBOR_RECONCILE_SCHEDULE)")
	reconcileOnce     = flag.Bool("reconcile-once", false, "Enqueue a sync for every node and exit (for backfills)")
	logLevel          = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	log := setupLogger(*logLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}
	if *reconcileSchedule != "" {
		cfg.Worker.ReconcileSchedule = *reconcileSchedule
	}

	db, err := sql.Open("postgres", cfg.Graph.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to open graph store: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping graph store: %v", err)
	}

	redisClient, err := queue.NewClient(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	syncQueue := queue.New(redisClient, cfg.Queue.QueueName)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	store := graph.NewStore(db)
	resolver := permission.NewResolver(store)
	index := search.NewIndex(db)
	if err := index.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate search index: %v", err)
	}
	worker := search.NewWorker(syncQueue, store, resolver, index, appLogger, metrics, cfg.Worker.Concurrency)

	if *reconcileOnce {
		count, err := worker.ReconcileAll(ctx)
		if err != nil {
			log.Fatalf("Reconciliation failed: %v", err)
		}
		log.Infof("Enqueued sync for %d nodes", count)
		return
	}

	// Events left on the processing list by a crashed consumer are
	// redelivered before new consumption starts.
	if moved, err := syncQueue.RequeueOrphans(ctx); err != nil {
		log.Warnf("Failed to requeue orphaned events: %v", err)
	} else if moved > 0 {
		log.Infof("Requeued %d orphaned events", moved)
	}

	// Periodic full sweep keeps the index convergent even when an
	// enqueue was lost at update time.
	c := cron.New()
	if cfg.Worker.ReconcileSchedule != "" {
		_, err = c.AddFunc(cfg.Worker.ReconcileSchedule, func() {
			async.SafeGo(ctx, 10*time.Minute, "reconcile sweep", appLogger, func(ctx context.Context) error {
				count, err := worker.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				log.Infof("Reconciliation sweep enqueued %d nodes", count)
				return nil
			})
		})
		if err != nil {
			log.Fatalf("Failed to schedule reconciliation sweep: %v", err)
		}
		c.Start()
		log.Infof("Reconciliation schedule: %s", cfg.Worker.ReconcileSchedule)
	}

	// Health and metrics endpoint for probes and scraping.
	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{Addr: ":" + cfg.Server.HealthPort, Handler: healthMux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Health server failed: %v", err)
		}
	}()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(ctx)
	}()
	log.Infof("Permission syncer started with %d consumers", cfg.Worker.Concurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %s, shutting down", sig)
	case err := <-workerDone:
		if err != nil && err != context.Canceled {
			log.Errorf("Worker stopped: %v", err)
		}
	}

	cancel()

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Health server shutdown failed: %v", err)
	}

	log.Info("Permission syncer stopped")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
