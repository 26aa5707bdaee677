// Command worker consumes certificate runs from the Redis queue and serves
// its own metrics endpoint.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/certdossier/internal/bootstrap"
	"github.com/dharsanguruparan/certdossier/internal/config"
	"github.com/dharsanguruparan/certdossier/internal/logging"
	"github.com/dharsanguruparan/certdossier/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.UsesQueue() {
		log.Fatalf("CERTDOSSIER_REDIS_ADDR is required for the worker")
	}
	logger := logging.New("certdossier-worker", cfg.LogLevel, cfg.LogFormat)

	pipeline, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("init pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{cfg.QueueName: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	processor := worker.NewProcessor(pipeline.Orchestrator, logger)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           pipeline.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(processor.Handler()); err != nil {
			return err
		}
		<-ctx.Done()
		server.Shutdown()
		return nil
	})
	g.Go(func() error {
		logger.Info("worker metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", "error", err)
		stop()
		pipeline.Close()
		os.Exit(1)
	}
}
