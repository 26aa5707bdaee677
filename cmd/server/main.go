// Command server exposes the certificate API. With CERTDOSSIER_REDIS_ADDR set
// it enqueues runs for cmd/worker; otherwise it runs them in-process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/certdossier/internal/api"
	"github.com/dharsanguruparan/certdossier/internal/bootstrap"
	"github.com/dharsanguruparan/certdossier/internal/config"
	"github.com/dharsanguruparan/certdossier/internal/logging"
	"github.com/dharsanguruparan/certdossier/internal/processing"
	"github.com/dharsanguruparan/certdossier/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("certdossier-api", cfg.LogLevel, cfg.LogFormat)

	pipeline, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("init pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	var scheduler api.Scheduler
	if cfg.UsesQueue() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		scheduler = queue.NewEnqueuer(client, cfg.QueueName)
		logger.Info("scheduling runs on redis queue", "queue", cfg.QueueName)
	} else {
		runner := processing.New(pipeline.Orchestrator, cfg.WorkerConcurrency, logger)
		runner.Start(ctx)
		defer runner.Wait()
		scheduler = runner
		logger.Info("scheduling runs in-process", "workers", cfg.WorkerConcurrency)
	}

	srv := api.New(api.Dependencies{
		Address:         cfg.Address,
		Files:           pipeline.Docs,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Cases:           pipeline.Store,
		Runs:            pipeline.Store,
		Scheduler:       scheduler,
		Metrics:         pipeline.Metrics.Handler(),
		Logger:          logger,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		stop()
		pipeline.Close()
		os.Exit(1)
	}
}
