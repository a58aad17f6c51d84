package retry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jzx17/storecheck/pkg/types"
)

// Candidate is one named strategy tried by FirstOf
type Candidate[T any] struct {
	Name string
	Fn   ExecuteFunc[T]
}

// CandidateError is the failure of a single candidate
type CandidateError struct {
	Name string
	Err  error
}

// FallbackError reports that every candidate failed, in the order they were tried
type FallbackError struct {
	Failures []CandidateError
}

// Error implements the error interface
func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Name, f.Err)
	}
	return fmt.Sprintf("all %d candidates failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap returns every candidate error so errors.Is/As can match any of them
func (e *FallbackError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// FirstOf tries candidates in order and returns the first success. When all
// fail, the returned *FallbackError carries every candidate's error.
func FirstOf[T any](ctx context.Context, candidates ...Candidate[T]) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, types.ErrNoAttempts
	}

	failures := make([]CandidateError, 0, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		name := c.Name
		if name == "" {
			name = fmt.Sprintf("candidate-%d", i+1)
		}

		value, err := c.Fn(ctx)
		if err == nil {
			return value, nil
		}
		failures = append(failures, CandidateError{Name: name, Err: err})
	}

	return zero, &FallbackError{Failures: failures}
}
