/*
Package recorder captures what happened during one end-to-end test run: the
ordered steps, outgoing API calls, assertions, errors, artifacts and metrics.

A Recorder is created per run and owned by it:

	rec := recorder.New(recorder.Metadata{Name: "checkout", Environment: "staging"},
		recorder.WithStore(recorder.NewFileStore(".storecheck")))
	defer rec.Finalize()

	n := rec.StartStep("navigate", "open the cart")
	if err := openCart(); err != nil {
		rec.FailStep(n, err)
		return
	}
	rec.CompleteStep(n, nil)

Finalize settles the run status and writes exactly one artifact. After that the
recorder ignores further mutations. Failures to persist are logged, never
returned, so recording can not break the test that is being recorded.

FileStore reads artifacts back for reporting, and Summarize aggregates them.
*/
package recorder
