package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jzx17/storecheck/internal/testutils"
	"pgregory.net/rapid"
)

func TestProperty_FailThenSucceed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "maxAttempts")

		var observed []int
		policy := NewLinearPolicy(n, time.Millisecond).WithOnRetry(func(attempt int, err error) {
			observed = append(observed, attempt)
		})

		calls := 0
		got, err := Do(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			if calls < n {
				return 0, fmt.Errorf("failure %d", calls)
			}
			return 99, nil
		}, policy, WithClock(testutils.NewInstantClock(t)))

		if err != nil {
			rt.Fatalf("expected success, got %v", err)
		}
		if got != 99 {
			rt.Fatalf("got %d, want 99", got)
		}
		if len(observed) != n-1 {
			rt.Fatalf("observer called %d times, want %d", len(observed), n-1)
		}
		for i, attempt := range observed {
			if attempt != i+1 {
				rt.Fatalf("observer attempt[%d] = %d, want %d", i, attempt, i+1)
			}
		}
	})
}

func TestProperty_AlwaysFails(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "maxAttempts")

		calls := 0
		var last error
		_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			last = fmt.Errorf("failure %d", calls)
			return 0, last
		}, NewExponentialPolicy(n, time.Microsecond), WithClock(testutils.NewInstantClock(t)))

		if calls != n {
			rt.Fatalf("operation called %d times, want %d", calls, n)
		}
		if err != last {
			rt.Fatalf("returned error %v is not the final attempt's error %v", err, last)
		}
	})
}

func TestProperty_DelaySchedule(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(rt, "maxAttempts")
		initial := time.Duration(rapid.IntRange(1, 5000).Draw(rt, "initialMs")) * time.Millisecond
		exponential := rapid.Bool().Draw(rt, "exponential")

		policy := NewLinearPolicy(n, initial)
		if exponential {
			policy = NewExponentialPolicy(n, initial)
		}

		clock := testutils.NewInstantClock(t)
		_, _ = Do(context.Background(), func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		}, policy, WithClock(clock))

		waits := clock.Waits()
		if len(waits) != n-1 {
			rt.Fatalf("waited %d times, want %d", len(waits), n-1)
		}
		for i, got := range waits {
			k := i + 1
			want := initial * time.Duration(k)
			if exponential {
				want = initial * time.Duration(1<<(k-1))
			}
			if got != want {
				rt.Fatalf("delay after attempt %d = %v, want %v", k, got, want)
			}
		}
	})
}
