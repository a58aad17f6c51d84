package apicheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/retry"
	"github.com/jzx17/storecheck/pkg/types"
)

// StatusError is returned for 5xx responses so they are retried.
type StatusError struct {
	Status int
	Method string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server error %d", e.Method, e.URL, e.Status)
}

// Runner executes checks against a base URL, recording one step per check.
// Recorder is required.
type Runner struct {
	Client   *http.Client
	BaseURL  string
	Recorder *recorder.Recorder
	// Retry applies to each request. Transport errors and 5xx responses are
	// retried. A zero policy means a single attempt.
	Retry  retry.Policy
	Clock  types.Clock
	Logger *log.Logger
}

// Run executes the checks in order. Every check runs even when an earlier one
// fails; the failures are joined into the returned error.
func (r *Runner) Run(ctx context.Context, checks ...Check) error {
	var errs []error
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.runCheck(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.label(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) runCheck(ctx context.Context, c Check) error {
	rec := r.Recorder
	ordinal := rec.StartStep("api", c.label())

	policy := r.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.NewFixedPolicy(1, 0)
	}
	observer := policy.OnRetry
	policy = policy.WithOnRetry(func(attempt int, err error) {
		r.logger().Debug("retrying check", "check", c.label(), "attempt", attempt, "err", err)
		rec.UpdateMetadata(func(m *recorder.Metadata) { m.RetryCount++ })
		if observer != nil {
			observer(attempt, err)
		}
	})

	var resp Response
	_, err := retry.Do(ctx, func(ctx context.Context) (Response, error) {
		var err error
		resp, err = r.do(ctx, c)
		return resp, err
	}, policy, retry.WithClock(types.OrReal(r.Clock)))
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			rec.FailStep(ordinal, err)
			return err
		}
		// a final 5xx still gets its expectations evaluated
	}

	env := resp.Env()
	var failed []error
	for _, e := range c.Expect {
		ok, evalErr := Evaluate(e, env)
		if evalErr == nil && !ok {
			evalErr = fmt.Errorf("expectation %q not met (status %d)", e, resp.Status)
		}
		rec.AddAssertion(c.label()+": "+e, evalErr)
		if evalErr != nil {
			failed = append(failed, evalErr)
		}
	}

	if len(c.Expect) == 0 && err != nil {
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		stepErr := errors.Join(failed...)
		rec.FailStep(ordinal, stepErr)
		return stepErr
	}
	rec.CompleteStep(ordinal, map[string]any{"status": resp.Status, "durationMs": resp.DurationMs})
	return nil
}

func (r *Runner) do(ctx context.Context, c Check) (Response, error) {
	body, contentType, err := encodeBody(c.Body)
	if err != nil {
		return Response{}, err
	}

	url := strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(c.Path, "/")
	req, err := http.NewRequestWithContext(ctx, c.method(), url, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	clock := types.OrReal(r.Clock)
	started := clock.Now()
	httpResp, err := r.client().Do(req)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	resp := Response{
		Status:     httpResp.StatusCode,
		Headers:    make(map[string]string, len(httpResp.Header)),
		Text:       string(data),
		DurationMs: clock.Since(started).Milliseconds(),
	}
	for k := range httpResp.Header {
		resp.Headers[k] = httpResp.Header.Get(k)
	}

	if resp.Status >= 500 {
		return resp, &StatusError{Status: resp.Status, Method: req.Method, URL: url}
	}
	return resp, nil
}

func (r *Runner) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.For("apicheck")
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
