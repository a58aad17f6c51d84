package load

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/types"
)

// Plan describes a load run.
type Plan struct {
	// VirtualUsers is the number of concurrent workers
	VirtualUsers int
	// Iterations is the number of scenario runs per virtual user
	Iterations int
	// MaxErrorRate is the highest error rate (0..1) that still passes the step
	MaxErrorRate float64
	// Clock measures iteration latency; defaults to the real clock
	Clock types.Clock
}

// Validate rejects plans that can not run.
func (p Plan) Validate() error {
	if p.VirtualUsers < 1 {
		return fmt.Errorf("virtual users must be at least 1, got %d", p.VirtualUsers)
	}
	if p.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", p.Iterations)
	}
	if p.MaxErrorRate < 0 || p.MaxErrorRate > 1 {
		return fmt.Errorf("max error rate must be within [0, 1], got %v", p.MaxErrorRate)
	}
	return nil
}

// Report summarizes a load run.
type Report struct {
	Iterations int
	Failures   int
	ErrorRate  float64
	Latency    LatencyStats
	// FirstError is the first failure observed, if any
	FirstError error
}

// LatencyStats are iteration latency percentiles.
type LatencyStats struct {
	Avg time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration
}

// Run executes the scenario VirtualUsers*Iterations times on a pool of
// VirtualUsers workers, as one recorded step. Latency and error metrics are
// written into rec. The step fails when the error rate exceeds MaxErrorRate;
// the returned error is reserved for runs that could not complete.
func Run(ctx context.Context, rec *recorder.Recorder, plan Plan, scenario Scenario) (Report, error) {
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}
	clock := types.OrReal(plan.Clock)
	logger := logging.For("load")
	total := plan.VirtualUsers * plan.Iterations

	ordinal := rec.StartStep("load", fmt.Sprintf("%d virtual users x %d iterations", plan.VirtualUsers, plan.Iterations))

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, total)
		failures  int
		firstErr  error
		// remaining counts iterations that have not reported; done closes at zero
		remaining atomic.Int64
		done      = make(chan struct{})
	)
	remaining.Store(int64(total))
	timed := func(ctx context.Context, vu int) error {
		started := clock.Now()
		err := scenario(ctx, vu)
		elapsed := clock.Since(started)

		mu.Lock()
		latencies = append(latencies, elapsed)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
		mu.Unlock()
		return err
	}

	pool, err := NewPool(Config{
		Size:      plan.VirtualUsers,
		QueueSize: total,
		OnComplete: func(c Completion) {
			if c.Err != nil {
				var pe *PanicError
				if errors.As(c.Err, &pe) {
					// a panic skips the latency bookkeeping in timed
					mu.Lock()
					failures++
					if firstErr == nil {
						firstErr = c.Err
					}
					mu.Unlock()
				}
				logger.Debug("iteration failed", "task", c.TaskID, "vu", c.WorkerID, "err", c.Err)
			}
			if remaining.Add(-1) == 0 {
				close(done)
			}
		},
	})
	if err != nil {
		rec.FailStep(ordinal, err)
		return Report{}, err
	}
	if err := pool.Start(ctx); err != nil {
		rec.FailStep(ordinal, err)
		return Report{}, err
	}
	defer pool.Close()

	for i := 1; i <= total; i++ {
		if err := pool.Submit(newIterationTask(i, timed)); err != nil {
			rec.FailStep(ordinal, err)
			return Report{}, fmt.Errorf("submit iteration %d: %w", i, err)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		rec.FailStep(ordinal, err)
		return Report{}, err
	}

	mu.Lock()
	report := Report{
		Iterations: total,
		Failures:   failures,
		ErrorRate:  float64(failures) / float64(total),
		Latency:    Summarize(latencies),
		FirstError: firstErr,
	}
	mu.Unlock()

	recordMetrics(rec, report)

	if report.ErrorRate > plan.MaxErrorRate {
		rec.FailStep(ordinal, fmt.Errorf("error rate %.2f exceeds %.2f (%d of %d failed): %w",
			report.ErrorRate, plan.MaxErrorRate, report.Failures, report.Iterations, report.FirstError))
	} else {
		rec.CompleteStep(ordinal, map[string]any{
			"iterations": report.Iterations,
			"failures":   report.Failures,
		})
	}
	return report, nil
}

func recordMetrics(rec *recorder.Recorder, r Report) {
	rec.RecordMetric("iterations", float64(r.Iterations))
	rec.RecordMetric("failures", float64(r.Failures))
	rec.RecordMetric("error_rate", r.ErrorRate)
	rec.RecordMetric("latency_avg_ms", millis(r.Latency.Avg))
	rec.RecordMetric("latency_p50_ms", millis(r.Latency.P50))
	rec.RecordMetric("latency_p95_ms", millis(r.Latency.P95))
	rec.RecordMetric("latency_p99_ms", millis(r.Latency.P99))
	rec.RecordMetric("latency_max_ms", millis(r.Latency.Max))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Summarize computes nearest-rank percentiles over latencies.
func Summarize(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Avg: sum / time.Duration(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
		Max: sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
