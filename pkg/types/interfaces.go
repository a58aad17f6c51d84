// Package types defines core interfaces and types shared by the storecheck packages
package types

import (
	"context"
	"time"
)

// Task defines the task interface
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID (for tracking)
	ID() string
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of active worker goroutines
	ActiveWorkers int

	// QueueSize is the current number of tasks in the queue
	QueueSize int

	// QueueCapacity is the capacity of the queue
	QueueCapacity int
}

// Result defines the result of asynchronous execution
type Result[R any] struct {
	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Duration is the execution time
	Duration time.Duration
}
