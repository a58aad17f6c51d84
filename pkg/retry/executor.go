// Package retry provides retry executor implementation
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/pkg/types"
)

// Executor implements retry execution logic
type Executor struct {
	policy       Policy
	eventHandler EventHandler
	stats        RetryStats
	clock        types.Clock
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // total retry count
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	AverageAttempts float64       // average attempt count
	LastRetryTime   time.Time     // last retry time
	TotalRetryDelay time.Duration // total retry delay time
	mu              sync.RWMutex
}

// EventHandler handles retry events
type EventHandler interface {
	OnRetryAttempt(ctx context.Context, attempt int, err error, delay time.Duration)
	OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration)
	OnMaxAttemptsReached(ctx context.Context, attempt int, err error)
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		policy: policy,
		clock:  types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(executor)
	}
	executor.clock = types.OrReal(executor.clock)

	return executor
}

// Policy returns the executor's policy
func (r *Executor) Policy() Policy {
	return r.policy
}

// Execute runs fn until it succeeds or the policy's attempts are exhausted.
// The error of the final attempt is returned unchanged.
func Execute[T any](r *Executor, ctx context.Context, fn ExecuteFunc[T]) (T, error) {
	var zero T

	if r.policy.MaxAttempts < 1 {
		return zero, types.ErrNoAttempts
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
		})

		executeStart := r.clock.Now()
		result, err := fn(ctx)
		executeDuration := r.clock.Since(executeStart)

		if err == nil {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalSuccesses++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if r.eventHandler != nil && attempt > 1 {
				r.eventHandler.OnRetrySuccess(ctx, attempt, executeDuration)
			}

			return result, nil
		}

		if attempt >= r.policy.MaxAttempts {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if r.eventHandler != nil {
				r.eventHandler.OnMaxAttemptsReached(ctx, attempt, err)
			}

			return zero, err
		}

		delay := r.policy.NextDelay(attempt)

		r.updateStats(func(stats *RetryStats) {
			stats.LastRetryTime = r.clock.Now()
			stats.TotalRetryDelay += delay
		})

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err)
		}
		if r.eventHandler != nil {
			r.eventHandler.OnRetryAttempt(ctx, attempt, err, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-r.clock.After(delay):
			}
		}
	}
}

// ExecuteAsync executes a function with retry asynchronously
func ExecuteAsync[T any](r *Executor, ctx context.Context, fn ExecuteFunc[T]) <-chan types.Result[T] {
	resultChan := make(chan types.Result[T], 1)

	go func() {
		defer close(resultChan)

		start := r.clock.Now()
		value, err := Execute(r, ctx, fn)
		duration := r.clock.Since(start)

		resultChan <- types.Result[T]{
			Value:    value,
			Error:    err,
			Duration: duration,
		}
	}()

	return resultChan
}

// Do runs fn under policy with a one-shot executor
func Do[T any](ctx context.Context, fn ExecuteFunc[T], policy Policy, opts ...ExecutorOption) (T, error) {
	return Execute(NewRetryExecutor(policy, opts...), ctx, fn)
}

// Exponential retries fn with delays initialDelay * 2^(attempt-1), logging each retry at debug level
func Exponential[T any](ctx context.Context, fn ExecuteFunc[T], maxAttempts int, initialDelay time.Duration, opts ...ExecutorOption) (T, error) {
	policy := NewExponentialPolicy(maxAttempts, initialDelay).WithOnRetry(logRetry("exponential"))
	return Do(ctx, fn, policy, opts...)
}

// Linear retries fn with delays delay * attempt, logging each retry at debug level
func Linear[T any](ctx context.Context, fn ExecuteFunc[T], maxAttempts int, delay time.Duration, opts ...ExecutorOption) (T, error) {
	policy := NewLinearPolicy(maxAttempts, delay).WithOnRetry(logRetry("linear"))
	return Do(ctx, fn, policy, opts...)
}

func logRetry(backoff string) RetryFunc {
	return func(attempt int, err error) {
		logging.For("retry").Debug("attempt failed, retrying", "backoff", backoff, "attempt", attempt, "err", err)
	}
}

// GetStats gets retry statistics
func (r *Executor) GetStats() RetryStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   r.stats.TotalAttempts,
		TotalRetries:    r.stats.TotalRetries,
		TotalSuccesses:  r.stats.TotalSuccesses,
		TotalFailures:   r.stats.TotalFailures,
		AverageAttempts: r.stats.AverageAttempts,
		LastRetryTime:   r.stats.LastRetryTime,
		TotalRetryDelay: r.stats.TotalRetryDelay,
	}
}

// ResetStats resets statistics
func (r *Executor) ResetStats() {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()

	r.stats.TotalAttempts = 0
	r.stats.TotalRetries = 0
	r.stats.TotalSuccesses = 0
	r.stats.TotalFailures = 0
	r.stats.AverageAttempts = 0
	r.stats.LastRetryTime = time.Time{}
	r.stats.TotalRetryDelay = 0
}

// updateStats updates statistics (thread-safe)
func (r *Executor) updateStats(fn func(*RetryStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	fn(&r.stats)
}

// updateAverageAttempts updates average attempt count
func (s *RetryStats) updateAverageAttempts() {
	totalOperations := s.TotalSuccesses + s.TotalFailures
	if totalOperations > 0 {
		s.AverageAttempts = float64(s.TotalAttempts) / float64(totalOperations)
	}
}

// ExecutorOption is a configuration option for retry executor
type ExecutorOption func(*Executor)

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(r *Executor) {
		r.eventHandler = handler
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(r *Executor) {
		r.clock = clock
	}
}

// WithMaxDelay caps every computed delay. Zero leaves delays uncapped.
func WithMaxDelay(maxDelay time.Duration) ExecutorOption {
	return func(r *Executor) {
		r.policy.Strategy = cappedStrategy{inner: r.policy.strategy(), max: maxDelay}
	}
}

type cappedStrategy struct {
	inner BackoffStrategy
	max   time.Duration
}

func (c cappedStrategy) NextDelay(attempt int) time.Duration {
	return capDelay(c.inner.NextDelay(attempt), c.max)
}

// DefaultEventHandler is the default event handler implementation
type DefaultEventHandler struct {
	logger Logger
}

// Logger interface for logging. *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewDefaultEventHandler creates a default event handler
func NewDefaultEventHandler(logger Logger) *DefaultEventHandler {
	return &DefaultEventHandler{logger: logger}
}

// OnRetryAttempt handles retry attempt events
func (h *DefaultEventHandler) OnRetryAttempt(ctx context.Context, attempt int, err error, delay time.Duration) {
	if h.logger != nil {
		h.logger.Warnf("Attempt %d failed, retrying in %v: %v", attempt, delay, err)
	}
}

// OnRetrySuccess handles retry success events
func (h *DefaultEventHandler) OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration) {
	if h.logger != nil {
		h.logger.Infof("Retry succeeded on attempt %d after %v", attempt, duration)
	}
}

// OnMaxAttemptsReached handles max attempts reached events
func (h *DefaultEventHandler) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	if h.logger != nil {
		h.logger.Errorf("Max retry attempts (%d) reached, final error: %v", attempt, err)
	}
}
