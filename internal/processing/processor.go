// Package processing runs certificate pipelines on an in-process worker pool
// when no Redis queue is configured.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

// ErrQueueFull is returned by Schedule when every buffered slot is taken.
var ErrQueueFull = errors.New("processing queue full")

// ErrStopped is returned by Schedule after the pool has shut down.
var ErrStopped = errors.New("processing pool stopped")

// Executor runs one pipeline.
type Executor interface {
	Run(ctx context.Context, req orchestrator.Request) (*model.Run, error)
}

// Runner consumes scheduled requests on a fixed number of goroutines.
type Runner struct {
	exec    Executor
	queue   chan orchestrator.Request
	workers int
	logger  *slog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// New builds a Runner with queue capacity tied to worker count.
func New(exec Executor, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		exec:    exec,
		queue:   make(chan orchestrator.Request, workers*4),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
	}()
}

// Wait blocks until every worker has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Schedule queues req without blocking.
func (r *Runner) Schedule(_ context.Context, req orchestrator.Request) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrStopped
	}
	select {
	case r.queue <- req:
		return nil
	default:
		r.logger.Warn("processor queue full, rejecting run", "run_id", req.RunID, "case_id", req.CaseID)
		return ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			if _, err := r.exec.Run(ctx, req); err != nil {
				r.logger.Error("certificate run failed", "run_id", req.RunID, "case_id", req.CaseID, "error", err)
			}
		}
	}
}
