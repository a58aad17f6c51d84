package apicheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/internal/testutils"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/retry"
)

func TestEvaluate(t *testing.T) {
	env := Response{
		Status:     200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Text:       `{"items":[{"sku":"SKU-1","price":89.99}],"count":1}`,
		DurationMs: 42,
	}.Env()

	tests := []struct {
		expression string
		want       bool
		wantErr    bool
	}{
		{"status == 200", true, false},
		{"status >= 500", false, false},
		{`body.items[0].sku == "SKU-1"`, true, false},
		{"len(body.items) == body.count", true, false},
		{`headers["Content-Type"] startsWith "application/json"`, true, false},
		{"durationMs < 500", true, false},
		{`text contains "SKU-1"`, true, false},
		{"status +", false, true},
		{"status", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := Evaluate(tt.expression, env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expression, got, tt.want)
			}
		})
	}
}

func TestResponseEnv_NonJSONBody(t *testing.T) {
	env := Response{Status: 200, Text: "<html>ok</html>"}.Env()
	assert.Equal(t, "<html>ok</html>", env["body"])
}

func newRunner(t *testing.T, baseURL string, policy retry.Policy) (*Runner, *recorder.Recorder, *testutils.InstantClock) {
	t.Helper()
	clock := testutils.NewInstantClock(t)
	rec := recorder.New(recorder.Metadata{Name: t.Name()}, recorder.WithClock(clock))
	return &Runner{
		Client:   &http.Client{Transport: NewTransport(nil, rec)},
		BaseURL:  baseURL,
		Recorder: rec,
		Retry:    policy,
		Clock:    clock,
		Logger:   logging.Discard(),
	}, rec, clock
}

func TestRunner_PassingChecks(t *testing.T) {
	shop := testutils.NewStorefront(t, 0)
	runner, rec, _ := newRunner(t, shop.URL, retry.Policy{})

	err := runner.Run(context.Background(),
		Check{Name: "catalogue", Path: "/api/products", Expect: []string{"status == 200", "body.count == 2"}},
		Check{
			Name:    "add to cart",
			Method:  "post",
			Path:    "api/cart",
			Headers: map[string]string{"Authorization": "Bearer t"},
			Body:    map[string]any{"sku": "SKU-2", "qty": 1},
			Expect:  []string{"status == 201", "body.items == 1"},
		},
	)
	require.NoError(t, err)

	snap := rec.Snapshot()
	require.Len(t, snap.Steps, 2)
	for _, s := range snap.Steps {
		assert.Equal(t, recorder.StepCompleted, s.Status, s.Description)
	}
	assert.Len(t, snap.Assertions, 4)
	assert.Empty(t, snap.FailedAssertions())
	assert.Len(t, snap.ExternalCalls, 2)
	assert.Equal(t, 1, shop.CartItems("SKU-2"))
}

func TestRunner_RetriesServerErrors(t *testing.T) {
	shop := testutils.NewStorefront(t, 2)
	runner, rec, clock := newRunner(t, shop.URL, retry.NewExponentialPolicy(3, 100*time.Millisecond))

	err := runner.Run(context.Background(), Check{Name: "flaky", Path: "/api/flaky", Expect: []string{"body.ok"}})
	require.NoError(t, err)

	assert.Equal(t, 3, shop.FlakyHits())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Waits())

	snap := rec.Snapshot()
	assert.Equal(t, 2, snap.Metadata.RetryCount)
	assert.Len(t, snap.ExternalCalls, 3)
	assert.Equal(t, recorder.StepCompleted, snap.Steps[0].Status)
}

func TestRunner_ExhaustedRetriesStillEvaluate(t *testing.T) {
	shop := testutils.NewStorefront(t, 10)
	runner, rec, _ := newRunner(t, shop.URL, retry.NewLinearPolicy(2, 10*time.Millisecond))

	err := runner.Run(context.Background(), Check{Name: "flaky", Path: "/api/flaky", Expect: []string{"status == 200"}})
	require.Error(t, err)

	snap := rec.Snapshot()
	assert.Equal(t, 2, shop.FlakyHits())
	require.Len(t, snap.Assertions, 1)
	assert.Equal(t, recorder.AssertionFailed, snap.Assertions[0].Status)
	assert.Equal(t, recorder.StepFailed, snap.Steps[0].Status)
}

func TestRunner_FailedExpectation(t *testing.T) {
	shop := testutils.NewStorefront(t, 0)
	runner, rec, _ := newRunner(t, shop.URL, retry.Policy{})

	err := runner.Run(context.Background(),
		Check{Name: "anonymous cart", Method: "POST", Path: "/api/cart", Body: `{"sku":"SKU-1"}`, Expect: []string{"status == 201"}},
		Check{Name: "product", Path: "/api/products/SKU-1", Expect: []string{`body.name == "Trail Runner"`}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anonymous cart")
	assert.NotContains(t, err.Error(), "product:")

	snap := rec.Snapshot()
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, recorder.StepFailed, snap.Steps[0].Status)
	assert.Equal(t, recorder.StepCompleted, snap.Steps[1].Status)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, 1, *snap.Errors[0].RelatedStep)
}

func TestRunner_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	runner, rec, clock := newRunner(t, url, retry.NewFixedPolicy(3, time.Second))
	err := runner.Run(context.Background(), Check{Name: "down", Path: "/"})
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
	assert.Len(t, clock.Waits(), 2)

	snap := rec.Snapshot()
	assert.Equal(t, recorder.StepFailed, snap.Steps[0].Status)
	assert.Len(t, snap.ExternalCalls, 3)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	shop := testutils.NewStorefront(t, 0)
	runner, rec, _ := newRunner(t, shop.URL, retry.Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runner.Run(ctx, Check{Path: "/api/products"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Snapshot().Steps)
}
