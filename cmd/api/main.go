package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/yourusername/webhookrelay/internal/adminapi"
	"github.com/yourusername/webhookrelay/internal/cache"
	"github.com/yourusername/webhookrelay/internal/config"
	"github.com/yourusername/webhookrelay/internal/ingest"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/queue"
	"github.com/yourusername/webhookrelay/internal/store"

	redisclient "github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

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

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Workers: river.NewWorkers(),
	})
	if err != nil {
		fatal(log, "failed to create river client", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		fatal(log, "failed to start river client", err)
	}
	defer riverClient.Stop(ctx)

	q := queue.NewRiverQueue(riverClient)

	ingestHandler := ingest.New(st, q, log)
	admin := adminapi.New(st, subCache, log)

	mux := http.NewServeMux()
	mux.Handle("POST /ingest/{subscription_id}", ingestHandler)
	admin.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mux,
	}

	go func() {
		log.Info("api server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fatal(log, "server shutdown error", err)
	}
	log.Info("api server stopped")
}

func fatal(log logging.Logger, msg string, err error) {
	log.Error(msg, err)
	os.Exit(1)
}
