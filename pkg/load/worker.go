package load

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/storecheck/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type workerIDKey struct{}

// WorkerID returns the 1-based ID of the worker running the task, or 0 outside
// a pool.
func WorkerID(ctx context.Context) int {
	id, _ := ctx.Value(workerIDKey{}).(int)
	return id
}

// Completion reports one finished task.
type Completion struct {
	WorkerID int
	TaskID   string
	Duration time.Duration
	Err      error
}

// Worker is one virtual user: a goroutine draining the shared task queue
type Worker struct {
	id    int
	state int32 // atomic state
	tasks <-chan types.Task
	quit  chan struct{}
	done  chan struct{}

	totalProcessed int64
	totalFailed    int64
	lastTaskTime   int64 // Unix nanosecond timestamp

	onComplete func(Completion)
	clock      types.Clock

	stopOnce sync.Once
}

// NewWorker creates a worker reading from tasks. A nil clock means the real clock.
func NewWorker(id int, tasks <-chan types.Task, clock types.Clock, onComplete func(Completion)) *Worker {
	return &Worker{
		id:         id,
		state:      int32(WorkerStateIdle),
		tasks:      tasks,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		onComplete: onComplete,
		clock:      types.OrReal(clock),
	}
}

// ID returns the Worker ID
func (w *Worker) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// Start runs the worker until ctx ends, Stop is called or the queue closes
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	ctx = context.WithValue(ctx, workerIDKey{}, w.id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			w.processTask(ctx, task)
		}
	}
}

func (w *Worker) processTask(ctx context.Context, task types.Task) {
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	err := w.executeTask(ctx, task)
	duration := w.clock.Since(startTime)

	if err != nil {
		atomic.AddInt64(&w.totalFailed, 1)
	} else {
		atomic.AddInt64(&w.totalProcessed, 1)
	}

	if w.onComplete != nil {
		w.onComplete(Completion{WorkerID: w.id, TaskID: task.ID(), Duration: duration, Err: err})
	}
}

// executeTask turns a panic into an error carrying the stack
func (w *Worker) executeTask(ctx context.Context, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)
			err = &PanicError{WorkerID: w.id, TaskID: task.ID(), Value: r, Stack: string(buf[:n])}
		}
	}()

	return task.Execute(ctx)
}

// Stop asks the worker to exit after its current task and waits up to 5s
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() { close(w.quit) })

	select {
	case <-w.done:
		return nil
	case <-w.clock.After(5 * time.Second):
		return fmt.Errorf("worker %d stop timeout", w.id)
	}
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		LastTaskTime:   time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// ErrorRate is failed over total tasks
func (ws WorkerStats) ErrorRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalFailed) / float64(total)
}

// PanicError is returned for a task that panicked
type PanicError struct {
	WorkerID int
	TaskID   string
	Value    any
	Stack    string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked on worker %d: %v", e.TaskID, e.WorkerID, e.Value)
}

// Format prints the stack with %+v so recorders keep it
func (e *PanicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
		return
	}
	fmt.Fprint(s, e.Error())
}
