package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyNextDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{
			name:    "linear first attempt",
			policy:  NewLinearPolicy(5, 100*time.Millisecond),
			attempt: 1,
			want:    100 * time.Millisecond,
		},
		{
			name:    "linear third attempt",
			policy:  NewLinearPolicy(5, 100*time.Millisecond),
			attempt: 3,
			want:    300 * time.Millisecond,
		},
		{
			name:    "exponential first attempt",
			policy:  NewExponentialPolicy(5, 100*time.Millisecond),
			attempt: 1,
			want:    100 * time.Millisecond,
		},
		{
			name:    "exponential fourth attempt",
			policy:  NewExponentialPolicy(5, 100*time.Millisecond),
			attempt: 4,
			want:    800 * time.Millisecond,
		},
		{
			name:    "fixed ignores attempt",
			policy:  NewFixedPolicy(5, 50*time.Millisecond),
			attempt: 4,
			want:    50 * time.Millisecond,
		},
		{
			name:    "zero value policy is linear",
			policy:  Policy{MaxAttempts: 2, InitialDelay: 10 * time.Millisecond},
			attempt: 2,
			want:    20 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.NextDelay(tt.attempt))
		})
	}
}

func TestPolicyWithOnRetry_DoesNotMutateOriginal(t *testing.T) {
	base := NewLinearPolicy(3, time.Millisecond)
	withObserver := base.WithOnRetry(func(int, error) {})

	assert.Nil(t, base.OnRetry)
	assert.NotNil(t, withObserver.OnRetry)
}

func TestParseBackoff(t *testing.T) {
	b, err := ParseBackoff("Exponential")
	require.NoError(t, err)
	assert.Equal(t, BackoffExponential, b)

	b, err = ParseBackoff(" linear ")
	require.NoError(t, err)
	assert.Equal(t, BackoffLinear, b)

	_, err = ParseBackoff("fibonacci")
	assert.Error(t, err)
}

func TestBackoffString(t *testing.T) {
	assert.Equal(t, "linear", BackoffLinear.String())
	assert.Equal(t, "exponential", BackoffExponential.String())
	assert.Equal(t, "unknown", Backoff(42).String())
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, NewLinearPolicy(1, 0).Validate())
	assert.Error(t, NewLinearPolicy(0, time.Second).Validate())
	assert.Error(t, NewExponentialPolicy(3, -time.Second).Validate())
}
