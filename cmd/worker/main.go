package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/yourusername/webhookrelay/internal/cache"
	"github.com/yourusername/webhookrelay/internal/config"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/queue"
	"github.com/yourusername/webhookrelay/internal/retention"
	"github.com/yourusername/webhookrelay/internal/store"
	"github.com/yourusername/webhookrelay/internal/worker"

	redisclient "github.com/redis/go-redis/v9"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer pool.Close()

	st := store.New(pool)

	var rdb *redisclient.Client
	if cfg.CacheURL != "" {
		opts, err := redisclient.ParseURL(cfg.CacheURL)
		if err != nil {
			fatal(log, "invalid CACHE_URL", err)
		}
		rdb = redisclient.NewClient(opts)
	}
	subCache := cache.New(rdb, cfg.CacheTTL(), log)

	workerCfg := worker.Config{
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.DeliveryTimeout(),
		RetryBase:      cfg.RetryBase(),
		RetryCap:       cfg.RetryCap(),
	}

	workers := river.NewWorkers()

	deliveryWorker := worker.New(st, subCache, nil, workerCfg, log)
	river.AddWorker(workers, deliveryWorker)

	retentionWorker := retention.New(st, cfg.LogRetention(), log)
	river.AddWorker(workers, retentionWorker)

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.WorkerConcurrency},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			retention.PeriodicJob(cfg.RetentionSweepInterval),
		},
	})
	if err != nil {
		fatal(log, "failed to create river client", err)
	}

	// Wire the queue adapter back into the delivery worker now that the
	// client exists (the worker needs it to re-enqueue retries).
	deliveryWorker.Queue = queue.NewRiverQueue(riverClient)

	if err := riverClient.Start(ctx); err != nil {
		fatal(log, "failed to start river client", err)
	}

	go func() {
		log.Info("metrics server starting")
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", err)
		}
	}()

	log.Info("worker process started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down worker")
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Error("error stopping river client", err)
	}
	log.Info("worker stopped")
}

func fatal(log logging.Logger, msg string, err error) {
	log.Error(msg, err)
	os.Exit(1)
}
