package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream")

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestExecuteSingleAttemptByDefault(t *testing.T) {
	g := NewGuard(fastConfig(), nil)
	calls := 0
	err := g.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errUpstream
	}, func(error) Classification { return Classification{Retryable: true, RecordFailure: true} })

	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesRetryable(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	cfg.BreakerEnabled = false
	g := NewGuard(cfg, nil)

	calls := 0
	err := g.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	}, func(error) Classification { return Classification{Retryable: true} })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteStopsOnPermanent(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	g := NewGuard(cfg, nil)

	calls := 0
	err := g.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errUpstream
	}, func(error) Classification { return Classification{} })

	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, calls)
}

func TestBreakerOpensPerOperation(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 1
	g := NewGuard(cfg, nil)
	fail := func(context.Context) error { return errUpstream }

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, g.Execute(context.Background(), "a", fail, nil), errUpstream)
	}
	err := g.Execute(context.Background(), "a", fail, nil)
	assert.True(t, IsCircuitOpen(err))

	err = g.Execute(context.Background(), "b", func(context.Context) error { return nil }, nil)
	assert.NoError(t, err)
}

func TestIgnoredFailuresKeepBreakerClosed(t *testing.T) {
	cfg := fastConfig()
	cfg.BreakerMinRequests = 1
	cfg.BreakerFailureRatio = 1
	g := NewGuard(cfg, nil)
	notCounted := func(error) Classification { return Classification{} }

	for i := 0; i < 5; i++ {
		err := g.Execute(context.Background(), "a", func(context.Context) error { return errUpstream }, notCounted)
		assert.ErrorIs(t, err, errUpstream)
		assert.False(t, IsCircuitOpen(err))
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	g := NewGuard(fastConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := g.Execute(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestExecuteNilCallback(t *testing.T) {
	assert.Error(t, NewGuard(DefaultConfig(), nil).Execute(context.Background(), "op", nil, nil))
}
