package load

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/storecheck/pkg/types"
)

type funcTask struct {
	id string
	fn func(ctx context.Context) error
}

func (t funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }
func (t funcTask) ID() string                        { return t.id }

func task(fn func(ctx context.Context) error) funcTask {
	return funcTask{id: "test", fn: fn}
}

func TestNewPool(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "default config", config: DefaultConfig()},
		{name: "valid config", config: Config{Size: 5, QueueSize: 50}},
		{name: "zero size should error", config: Config{Size: 0, QueueSize: 50}, expectError: true},
		{name: "negative size should error", config: Config{Size: -1, QueueSize: 50}, expectError: true},
		{name: "zero queue size should error", config: Config{Size: 5, QueueSize: 0}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, pool)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Size, pool.Size())
		})
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, err := NewPool(Config{Size: 3, QueueSize: 10})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.True(t, pool.IsRunning())
	assert.Error(t, pool.Start(ctx))

	require.NoError(t, pool.Stop())
	assert.False(t, pool.IsRunning())
	assert.ErrorIs(t, pool.Stop(), types.ErrPoolNotRunning)

	require.NoError(t, pool.Close())
	assert.ErrorIs(t, pool.Start(ctx), types.ErrPoolClosed)
	assert.ErrorIs(t, pool.Submit(task(func(context.Context) error { return nil })), types.ErrPoolClosed)
}

func TestPool_Submit(t *testing.T) {
	pool, err := NewPool(Config{Size: 2, QueueSize: 5})
	require.NoError(t, err)

	noop := task(func(context.Context) error { return nil })
	assert.ErrorIs(t, pool.Submit(noop), types.ErrPoolNotRunning)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Close()

	assert.NoError(t, pool.Submit(noop))
	assert.Error(t, pool.Submit(nil))
}

func TestPool_TaskExecution(t *testing.T) {
	var completions int64
	var wg sync.WaitGroup
	pool, err := NewPool(Config{
		Size:      2,
		QueueSize: 10,
		OnComplete: func(c Completion) {
			atomic.AddInt64(&completions, 1)
			wg.Done()
		},
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Close()

	var seen sync.Map
	numTasks := 10
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		fail := i%2 == 0
		require.NoError(t, pool.Submit(task(func(ctx context.Context) error {
			seen.Store(WorkerID(ctx), true)
			if fail {
				return fmt.Errorf("task failed")
			}
			return nil
		})))
	}
	wg.Wait()

	assert.EqualValues(t, numTasks, atomic.LoadInt64(&completions))
	seen.Range(func(k, _ any) bool {
		id := k.(int)
		assert.True(t, id == 1 || id == 2, "worker id %d", id)
		return true
	})

	var processed, failed int64
	for _, ws := range pool.WorkerStats() {
		processed += ws.TotalProcessed
		failed += ws.TotalFailed
	}
	assert.EqualValues(t, 5, processed)
	assert.EqualValues(t, 5, failed)
	assert.Equal(t, 2, pool.Stats().PoolSize)
}

func TestPool_SubmitWhenFull(t *testing.T) {
	pool, err := NewPool(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := task(func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	noop := task(func(context.Context) error { return nil })

	require.NoError(t, pool.SubmitWithTimeout(blocking, time.Second))
	<-started
	require.NoError(t, pool.SubmitWithTimeout(noop, 0))

	assert.Equal(t, types.ErrPoolFull, pool.SubmitWithTimeout(noop, 0))
	assert.Equal(t, types.ErrTimeout, pool.SubmitWithTimeout(noop, 10*time.Millisecond))

	close(release)
	require.NoError(t, pool.Close())
}

func TestPool_WorkerPanic(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	pool, err := NewPool(Config{
		Size:      2,
		QueueSize: 10,
		OnComplete: func(c Completion) {
			mu.Lock()
			errs = append(errs, c.Err)
			mu.Unlock()
			wg.Done()
		},
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Close()

	wg.Add(2)
	require.NoError(t, pool.Submit(funcTask{id: "boom", fn: func(context.Context) error { panic("test panic") }}))
	require.NoError(t, pool.Submit(task(func(context.Context) error { return nil })))
	wg.Wait()

	var pe *PanicError
	var panics int
	for _, err := range errs {
		if errors.As(err, &pe) {
			panics++
		}
	}
	require.Equal(t, 1, panics)
	assert.Equal(t, "boom", pe.TaskID)
	assert.Equal(t, "test panic", pe.Value)
	assert.Contains(t, fmt.Sprintf("%+v", pe), "goroutine")
	assert.NotContains(t, fmt.Sprintf("%v", pe), "goroutine")
	assert.True(t, pool.IsRunning(), "a panicking task does not kill the pool")
}

func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	pool, err := NewPool(Config{Size: 2, QueueSize: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		for _, ws := range pool.WorkerStats() {
			if ws.State != WorkerStateStopped {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, pool.Close())
}

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "idle", WorkerStateIdle.String())
	assert.Equal(t, "working", WorkerStateWorking.String())
	assert.Equal(t, "stopped", WorkerStateStopped.String())
	assert.Equal(t, "unknown", WorkerState(9).String())
}

func TestWorkerStats_ErrorRate(t *testing.T) {
	assert.Zero(t, WorkerStats{}.ErrorRate())
	assert.InDelta(t, 0.25, WorkerStats{TotalProcessed: 3, TotalFailed: 1}.ErrorRate(), 1e-9)
}
