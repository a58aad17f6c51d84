package load

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/storecheck/pkg/types"
)

const (
	poolStopped int32 = iota
	poolRunning
	poolClosed
)

// Config defines configuration for the virtual user pool
type Config struct {
	// Size is the number of virtual users
	Size int

	// QueueSize is the task queue size
	QueueSize int

	// SubmitTimeout bounds Submit when the queue is full; <= 0 fails immediately
	SubmitTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// OnComplete is called from the worker goroutine after every task
	OnComplete func(Completion)
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Size:          10,
		QueueSize:     100,
		SubmitTimeout: 5 * time.Second,
	}
}

// Pool is a fixed-size pool of workers sharing one task queue
type Pool struct {
	config  Config
	workers []*Worker
	tasks   chan types.Task

	state     int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPool creates a pool; workers start with Start
func NewPool(config Config) (*Pool, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.Size)
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", config.QueueSize)
	}
	config.Clock = types.OrReal(config.Clock)

	tasks := make(chan types.Task, config.QueueSize)
	workers := make([]*Worker, config.Size)
	for i := range workers {
		workers[i] = NewWorker(i+1, tasks, config.Clock, config.OnComplete)
	}

	return &Pool{
		config:  config,
		workers: workers,
		tasks:   tasks,
	}, nil
}

// Start starts every worker
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, poolStopped, poolRunning) {
		if atomic.LoadInt32(&p.state) == poolRunning {
			return fmt.Errorf("pool is already running")
		}
		return types.ErrPoolClosed
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Start(p.ctx)
	}
	return nil
}

// Submit queues a task, waiting up to the configured SubmitTimeout
func (p *Pool) Submit(task types.Task) error {
	return p.SubmitWithTimeout(task, p.config.SubmitTimeout)
}

// SubmitWithTimeout queues a task, waiting up to timeout for queue space
func (p *Pool) SubmitWithTimeout(task types.Task, timeout time.Duration) error {
	switch atomic.LoadInt32(&p.state) {
	case poolStopped:
		return types.ErrPoolNotRunning
	case poolClosed:
		return types.ErrPoolClosed
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if timeout <= 0 {
		select {
		case p.tasks <- task:
			return nil
		default:
			return types.ErrPoolFull
		}
	}

	timer := p.config.Clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.tasks <- task:
		return nil
	case <-timer.C():
		return types.ErrTimeout
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop cancels the workers and waits for them to exit. Queued tasks are dropped.
func (p *Pool) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.state, poolRunning, poolStopped) {
		if atomic.LoadInt32(&p.state) == poolStopped {
			return types.ErrPoolNotRunning
		}
		return types.ErrPoolClosed
	}

	p.cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(p.workers))
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Stop(); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	// report the first stuck worker
	for err := range errs {
		return err
	}
	return nil
}

// Close stops the pool if needed and releases the queue
func (p *Pool) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		if atomic.LoadInt32(&p.state) == poolRunning {
			closeErr = p.Stop()
		}
		atomic.StoreInt32(&p.state, poolClosed)
		close(p.tasks)
	})
	return closeErr
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.config.Size
}

// IsRunning reports whether the pool accepts tasks
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == poolRunning
}

// Stats gets basic pool statistics
func (p *Pool) Stats() types.WorkerPoolStats {
	var active int
	for _, w := range p.workers {
		if w.State() == WorkerStateWorking {
			active++
		}
	}
	return types.WorkerPoolStats{
		PoolSize:      p.config.Size,
		ActiveWorkers: active,
		QueueSize:     len(p.tasks),
		QueueCapacity: p.config.QueueSize,
	}
}

// WorkerStats gets statistics of every worker
func (p *Pool) WorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}
