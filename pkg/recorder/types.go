package recorder

import (
	"time"
)

// StepStatus is the lifecycle status of a step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Terminal reports whether the step has finished.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// AssertionStatus is the outcome of an assertion.
type AssertionStatus string

const (
	AssertionPassed AssertionStatus = "passed"
	AssertionFailed AssertionStatus = "failed"
)

// RunStatus is the overall status of a run.
type RunStatus string

const (
	RunStarted RunStatus = "started"
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// Terminal reports whether the status is a final outcome.
func (s RunStatus) Terminal() bool {
	return s == RunPassed || s == RunFailed || s == RunSkipped
}

// Step is one tracked action within a run.
type Step struct {
	Ordinal     int        `json:"ordinal" yaml:"ordinal"`
	Action      string     `json:"action" yaml:"action"`
	Description string     `json:"description" yaml:"description"`
	StartedAt   time.Time  `json:"startedAt" yaml:"startedAt"`
	Status      StepStatus `json:"status" yaml:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	Data        any        `json:"data,omitempty" yaml:"data,omitempty"`
}

// ExternalCall records one request/response exchange with an outside service.
type ExternalCall struct {
	RequestID       string            `json:"requestId" yaml:"requestId"`
	Method          string            `json:"method" yaml:"method"`
	URL             string            `json:"url" yaml:"url"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty" yaml:"requestHeaders,omitempty"`
	RequestBody     string            `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	ResponseStatus  int               `json:"responseStatus,omitempty" yaml:"responseStatus,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty" yaml:"responseBody,omitempty"`
	ObservedAt      time.Time         `json:"observedAt" yaml:"observedAt"`
	DurationMs      *int64            `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
}

// Assertion records one checked expectation.
type Assertion struct {
	Description string          `json:"description" yaml:"description"`
	Status      AssertionStatus `json:"status" yaml:"status"`
	ObservedAt  time.Time       `json:"observedAt" yaml:"observedAt"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// ErrorRecord records an error observed during the run.
type ErrorRecord struct {
	Message     string    `json:"message" yaml:"message"`
	Stack       string    `json:"stack,omitempty" yaml:"stack,omitempty"`
	ObservedAt  time.Time `json:"observedAt" yaml:"observedAt"`
	RelatedStep *int      `json:"relatedStep,omitempty" yaml:"relatedStep,omitempty"`
}

// Metadata identifies a run and carries its final outcome.
type Metadata struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	File        string     `json:"file,omitempty" yaml:"file,omitempty"`
	Category    string     `json:"category,omitempty" yaml:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Environment string     `json:"environment,omitempty" yaml:"environment,omitempty"`
	Target      string     `json:"target,omitempty" yaml:"target,omitempty"`
	StartedAt   time.Time  `json:"startedAt" yaml:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	Status      RunStatus  `json:"status" yaml:"status"`
	RetryCount  int        `json:"retryCount" yaml:"retryCount"`
}

// RunContext is everything recorded for one run. It is the persisted artifact.
type RunContext struct {
	Metadata        Metadata           `json:"metadata" yaml:"metadata"`
	Steps           []Step             `json:"steps" yaml:"steps"`
	ExternalCalls   []ExternalCall     `json:"apiCalls" yaml:"apiCalls"`
	Assertions      []Assertion        `json:"assertions" yaml:"assertions"`
	Errors          []ErrorRecord      `json:"errors" yaml:"errors"`
	Artifacts       []string           `json:"artifacts" yaml:"artifacts"`
	Metrics         map[string]float64 `json:"metrics" yaml:"metrics"`
	TotalDurationMs int64              `json:"totalDurationMs" yaml:"totalDurationMs"`
}

// Step returns the step with the given ordinal.
func (rc RunContext) Step(ordinal int) (Step, bool) {
	for _, s := range rc.Steps {
		if s.Ordinal == ordinal {
			return s, true
		}
	}
	return Step{}, false
}

// FailedSteps returns the steps whose status is failed.
func (rc RunContext) FailedSteps() []Step {
	var out []Step
	for _, s := range rc.Steps {
		if s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// FailedAssertions returns the assertions whose status is failed.
func (rc RunContext) FailedAssertions() []Assertion {
	var out []Assertion
	for _, a := range rc.Assertions {
		if a.Status == AssertionFailed {
			out = append(out, a)
		}
	}
	return out
}

// clone returns a deep copy. Step.Data is copied by reference.
func (rc RunContext) clone() RunContext {
	out := RunContext{
		Metadata:        rc.Metadata,
		Steps:           make([]Step, len(rc.Steps)),
		ExternalCalls:   make([]ExternalCall, len(rc.ExternalCalls)),
		Assertions:      make([]Assertion, len(rc.Assertions)),
		Errors:          make([]ErrorRecord, len(rc.Errors)),
		Artifacts:       make([]string, len(rc.Artifacts)),
		Metrics:         make(map[string]float64, len(rc.Metrics)),
		TotalDurationMs: rc.TotalDurationMs,
	}
	copy(out.Assertions, rc.Assertions)
	copy(out.Artifacts, rc.Artifacts)
	out.Metadata.Tags = append([]string(nil), rc.Metadata.Tags...)
	out.Metadata.CompletedAt = cloneTime(rc.Metadata.CompletedAt)

	for i, s := range rc.Steps {
		s.CompletedAt = cloneTime(s.CompletedAt)
		s.DurationMs = cloneInt64(s.DurationMs)
		out.Steps[i] = s
	}
	for i, c := range rc.ExternalCalls {
		c.RequestHeaders = cloneHeaders(c.RequestHeaders)
		c.ResponseHeaders = cloneHeaders(c.ResponseHeaders)
		c.DurationMs = cloneInt64(c.DurationMs)
		out.ExternalCalls[i] = c
	}
	for i, e := range rc.Errors {
		if e.RelatedStep != nil {
			n := *e.RelatedStep
			e.RelatedStep = &n
		}
		out.Errors[i] = e
	}
	for k, v := range rc.Metrics {
		out.Metrics[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
