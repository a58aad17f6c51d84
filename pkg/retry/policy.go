// Package retry provides retry mechanism strategies and implementations
package retry

import (
	"fmt"
	"strings"
	"time"
)

// Backoff selects how the delay grows between attempts
type Backoff int

const (
	// BackoffLinear waits InitialDelay * attempt
	BackoffLinear Backoff = iota
	// BackoffExponential waits InitialDelay * 2^(attempt-1)
	BackoffExponential
)

// String returns the string representation of Backoff
func (b Backoff) String() string {
	switch b {
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseBackoff parses "linear" or "exponential"
func ParseBackoff(s string) (Backoff, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return BackoffLinear, nil
	case "exponential", "exp":
		return BackoffExponential, nil
	default:
		return 0, fmt.Errorf("unknown backoff %q (want linear or exponential)", s)
	}
}

// RetryFunc observes a failed attempt before the executor waits and retries.
// attempt is the 1-based index of the attempt that just failed.
type RetryFunc func(attempt int, err error)

// Policy describes one retry call. It is a value type and is not mutated by the executor.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// InitialDelay is the base delay fed into the backoff formula
	InitialDelay time.Duration

	// Backoff selects the delay formula when Strategy is nil
	Backoff Backoff

	// Strategy overrides Backoff when set
	Strategy BackoffStrategy

	// OnRetry is called after a failed attempt that will be retried
	OnRetry RetryFunc
}

// NewExponentialPolicy creates an exponential backoff policy
func NewExponentialPolicy(maxAttempts int, initialDelay time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		Backoff:      BackoffExponential,
	}
}

// NewLinearPolicy creates a linear backoff policy
func NewLinearPolicy(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		Backoff:      BackoffLinear,
	}
}

// NewFixedPolicy creates a fixed delay policy
func NewFixedPolicy(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		Strategy:     NewFixedBackoff(delay),
	}
}

// WithOnRetry returns a copy of the policy with the observer set
func (p Policy) WithOnRetry(fn RetryFunc) Policy {
	p.OnRetry = fn
	return p
}

// NextDelay returns the delay after the given 1-based attempt failed
func (p Policy) NextDelay(attempt int) time.Duration {
	return p.strategy().NextDelay(attempt)
}

func (p Policy) strategy() BackoffStrategy {
	if p.Strategy != nil {
		return p.Strategy
	}
	if p.Backoff == BackoffExponential {
		return NewExponentialBackoff(p.InitialDelay)
	}
	return NewLinearBackoff(p.InitialDelay)
}

// Validate reports a policy that can never run or has a negative delay
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative, got %v", p.InitialDelay)
	}
	return nil
}
