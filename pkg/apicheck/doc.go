/*
Package apicheck records and checks the storefront's HTTP APIs.

Transport wraps any http.RoundTripper and writes each exchange into a run as an
external call, with sensitive headers masked and bodies truncated. Runner
executes declarative checks:

	runner := &apicheck.Runner{
		Client:   &http.Client{Transport: apicheck.NewTransport(nil, rec)},
		BaseURL:  "https://staging.example.com",
		Recorder: rec,
		Retry:    retry.NewExponentialPolicy(3, 200*time.Millisecond),
	}
	err := runner.Run(ctx, apicheck.Check{
		Name:   "catalogue",
		Path:   "/api/products",
		Expect: []string{"status == 200", "len(body.items) > 0"},
	})

Expectations are expr-lang expressions over status, headers, body, text and
durationMs.
*/
package apicheck
