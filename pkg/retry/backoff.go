// Package retry provides backoff algorithm implementations
package retry

import (
	"math"
	"time"
)

// BackoffStrategy defines the backoff strategy interface
type BackoffStrategy interface {
	// NextDelay calculates the delay after the given 1-based attempt failed
	NextDelay(attempt int) time.Duration
}

// FixedBackoff implements fixed backoff strategy
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff creates a fixed backoff strategy
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	return &FixedBackoff{delay: delay}
}

// NextDelay calculates the delay for the next retry
func (b *FixedBackoff) NextDelay(attempt int) time.Duration {
	return b.delay
}

// ExponentialBackoff implements exponential backoff strategy:
// initialDelay * multiplier^(attempt-1)
type ExponentialBackoff struct {
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// NewExponentialBackoff creates an exponential backoff strategy with multiplier 2 and no cap
func NewExponentialBackoff(initialDelay time.Duration, opts ...BackoffStrategyOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: initialDelay,
		multiplier:   2.0,
	}

	for _, opt := range opts {
		opt.applyToExponential(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	raw := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	delay := clampDuration(raw)

	return capDelay(delay, b.maxDelay)
}

// LinearBackoff implements linear backoff strategy: initialDelay * attempt
type LinearBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewLinearBackoff creates a linear backoff strategy with no cap
func NewLinearBackoff(initialDelay time.Duration, opts ...BackoffStrategyOption) *LinearBackoff {
	b := &LinearBackoff{
		initialDelay: initialDelay,
	}

	for _, opt := range opts {
		opt.applyToLinear(b)
	}

	return b
}

// NextDelay calculates the delay for the next retry
func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := clampDuration(float64(b.initialDelay) * float64(attempt))

	return capDelay(delay, b.maxDelay)
}

// clampDuration converts a float nanosecond count to a Duration without overflowing
func clampDuration(ns float64) time.Duration {
	if ns >= math.MaxInt64 || math.IsInf(ns, 1) || math.IsNaN(ns) {
		return time.Duration(math.MaxInt64)
	}
	if ns <= 0 {
		return 0
	}
	return time.Duration(ns)
}

// capDelay limits delay to maxDelay when a cap is configured
func capDelay(delay, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// BackoffStrategyOption backoff strategy configuration option
type BackoffStrategyOption interface {
	applyToExponential(*ExponentialBackoff)
	applyToLinear(*LinearBackoff)
}

type backoffStrategyOption struct {
	multiplier *float64
	maxDelay   *time.Duration
}

func (o *backoffStrategyOption) applyToExponential(b *ExponentialBackoff) {
	if o.multiplier != nil {
		b.multiplier = *o.multiplier
	}
	if o.maxDelay != nil {
		b.maxDelay = *o.maxDelay
	}
}

func (o *backoffStrategyOption) applyToLinear(b *LinearBackoff) {
	if o.maxDelay != nil {
		b.maxDelay = *o.maxDelay
	}
}

// WithBackoffMultiplier sets backoff multiplier (exponential backoff only)
func WithBackoffMultiplier(multiplier float64) BackoffStrategyOption {
	return &backoffStrategyOption{multiplier: &multiplier}
}

// WithBackoffMaxDelay caps the delay. Zero means uncapped.
func WithBackoffMaxDelay(maxDelay time.Duration) BackoffStrategyOption {
	return &backoffStrategyOption{maxDelay: &maxDelay}
}
