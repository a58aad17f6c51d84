// Package types defines error types
package types

import (
	"errors"
)

// Predefined errors
var (
	// ErrNoAttempts indicates a retry policy allowed zero attempts, so the operation never ran
	ErrNoAttempts = errors.New("no attempts made")

	// ErrDuplicateRun indicates a run with the same ID is already registered
	ErrDuplicateRun = errors.New("run already registered")

	// ErrRunNotFound indicates no run matches the given identifier
	ErrRunNotFound = errors.New("run not found")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrPoolFull indicates the worker pool queue is full
	ErrPoolFull = errors.New("worker pool is full")

	// ErrPoolClosed indicates the worker pool is closed
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolNotRunning indicates the worker pool has not been started
	ErrPoolNotRunning = errors.New("worker pool is not running")
)
