// Package retry runs fallible operations again after a delay.
//
// A Policy carries the attempt budget, the base delay and the backoff formula:
//
//   - BackoffLinear:      InitialDelay * attempt
//   - BackoffExponential: InitialDelay * 2^(attempt-1)
//
// where attempt is the 1-based index of the attempt that just failed. There is no
// jitter and no cap unless WithMaxDelay is used, so callers pick bounded
// MaxAttempts and InitialDelay.
//
// The executor treats every error as retryable. An operation that wants to stop
// early should return nil and report its failure through its result instead.
// When the last attempt fails, that attempt's error is returned unchanged, so
// errors.Is and identity comparisons keep working. A policy with MaxAttempts < 1
// never calls the operation and fails with types.ErrNoAttempts.
//
// Basic usage:
//
//	order, err := retry.Exponential(ctx, func(ctx context.Context) (Order, error) {
//		return client.PlaceOrder(ctx, cart)
//	}, 3, 100*time.Millisecond)
//
// With an observer:
//
//	policy := retry.NewLinearPolicy(5, 200*time.Millisecond).
//		WithOnRetry(func(attempt int, err error) {
//			rec.AddError(err, step)
//		})
//	_, err := retry.Do(ctx, op, policy)
//
// Tests inject a clock with WithClock so backoff schedules are checked without
// sleeping.
//
// FirstOf covers the other common shape: an ordered list of alternatives (for
// example several locators for the same button) tried once each. Its failure
// lists every alternative's error, not just the last one.
package retry
