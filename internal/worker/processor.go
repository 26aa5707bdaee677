// Package worker plugs the certificate pipeline into the asynq worker loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
	"github.com/dharsanguruparan/certdossier/internal/queue"
)

// Executor runs one pipeline.
type Executor interface {
	Run(ctx context.Context, req orchestrator.Request) (*model.Run, error)
}

// Processor handles certificate run tasks.
type Processor struct {
	exec   Executor
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(exec Executor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{exec: exec, logger: logger}
}

// Handler registers the run handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RunCertificatesTask, p.handleRun)
	return mux
}

func (p *Processor) handleRun(ctx context.Context, task *asynq.Task) error {
	req, err := queue.DecodeRunPayload(task)
	if err != nil {
		p.logger.Error("dropping malformed task", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	run, err := p.exec.Run(ctx, req)
	if err != nil {
		p.logger.Error("certificate run failed", "run_id", req.RunID, "case_id", req.CaseID, "error", err)
		return err
	}
	p.logger.Info("certificate run finished", "run_id", run.ID, "case_id", req.CaseID, "state", run.State)
	return nil
}
