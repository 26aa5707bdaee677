// Package resilience wraps upstream calls in a per-operation circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Classification tells the guard what an error means for retries and for the
// breaker's failure count.
type Classification struct {
	Retryable     bool
	RecordFailure bool
}

// Classifier inspects an error returned by a guarded call.
type Classifier func(err error) Classification

// Guard runs calls through one breaker per operation name.
type Guard struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewGuard builds a Guard. A nil logger discards breaker transitions.
func NewGuard(cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{
		cfg:      cfg.normalize(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute calls fn, retrying retryable failures up to MaxAttempts.
func (g *Guard) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = defaultClassifier
	}
	if !g.cfg.BreakerEnabled {
		return g.retry(ctx, op, fn, classify)
	}
	_, err := g.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, g.retry(ctx, op, fn, classify)
	})
	return err
}

func (g *Guard) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	backoff := g.cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err).Retryable || attempt == g.cfg.MaxAttempts {
			return err
		}
		g.logger.Warn("retry_attempt", "operation", op, "attempt", attempt, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*g.cfg.Multiplier), g.cfg.MaxBackoff)
	}
	return err
}

func (g *Guard) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[op]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: g.cfg.BreakerHalfOpenMax,
		Timeout:     g.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < g.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= g.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	g.breakers[op] = cb
	return cb
}

// IsCircuitOpen reports whether err was returned without calling upstream.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) Classification {
	return Classification{RecordFailure: true}
}
