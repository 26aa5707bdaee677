package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

type recordingExecutor struct {
	mu    sync.Mutex
	seen  []int64
	done  chan struct{}
	block chan struct{}
}

func (e *recordingExecutor) Run(ctx context.Context, req orchestrator.Request) (*model.Run, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
		}
	}
	e.mu.Lock()
	e.seen = append(e.seen, req.CaseID)
	e.mu.Unlock()
	if e.done != nil {
		e.done <- struct{}{}
	}
	return &model.Run{ID: req.RunID, State: model.RunCompleted}, nil
}

func TestRunnerExecutesScheduledRuns(t *testing.T) {
	exec := &recordingExecutor{done: make(chan struct{}, 3)}
	r := New(exec, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, r.Schedule(context.Background(), orchestrator.Request{CaseID: i}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-exec.done:
		case <-time.After(2 * time.Second):
			t.Fatal("run was not executed")
		}
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2, 3}, exec.seen)
}

func TestRunnerRejectsWhenFull(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	r := New(exec, 1, nil)

	// Not started: the buffer fills without being drained.
	for i := 0; i < 4; i++ {
		require.NoError(t, r.Schedule(context.Background(), orchestrator.Request{CaseID: int64(i + 1)}))
	}
	assert.ErrorIs(t, r.Schedule(context.Background(), orchestrator.Request{CaseID: 99}), ErrQueueFull)
}

func TestRunnerStopsWithContext(t *testing.T) {
	exec := &recordingExecutor{}
	r := New(exec, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
	assert.Eventually(t, func() bool {
		return r.Schedule(context.Background(), orchestrator.Request{CaseID: 1}) == ErrStopped
	}, time.Second, 10*time.Millisecond)
}
