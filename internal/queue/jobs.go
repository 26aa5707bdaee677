// Package queue defines the asynq task that carries a certificate run from the
// API process to the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

const (
	// RunCertificatesTask is scheduled each time certificates are requested
	// for a case.
	RunCertificatesTask = "certificates:run"
)

// NewRunTask serializes req into a task. Runs are never retried by the queue:
// each fetch is attempted once per run.
func NewRunTask(req orchestrator.Request) (*asynq.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Timeout(30 * time.Minute)}
	if req.RunID != "" {
		opts = append(opts, asynq.TaskID(req.RunID))
	}
	return asynq.NewTask(RunCertificatesTask, data, opts...), nil
}

// DecodeRunPayload reverses NewRunTask.
func DecodeRunPayload(task *asynq.Task) (orchestrator.Request, error) {
	var req orchestrator.Request
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return req, fmt.Errorf("decode payload: %w", err)
	}
	if req.CaseID <= 0 {
		return req, fmt.Errorf("decode payload: invalid case id %d", req.CaseID)
	}
	return req, nil
}

// Enqueuer schedules runs on Redis through asynq.
type Enqueuer struct {
	client *asynq.Client
	queue  string
}

// NewEnqueuer wraps client. An empty queue name uses asynq's default queue.
func NewEnqueuer(client *asynq.Client, queue string) *Enqueuer {
	return &Enqueuer{client: client, queue: queue}
}

// Schedule enqueues req.
func (e *Enqueuer) Schedule(ctx context.Context, req orchestrator.Request) error {
	task, err := NewRunTask(req)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if e.queue != "" {
		opts = append(opts, asynq.Queue(e.queue))
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue certificate run: %w", err)
	}
	return nil
}
