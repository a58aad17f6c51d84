package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jzx17/storecheck/internal/logging"
	"github.com/jzx17/storecheck/pkg/types"
)

// Store persists the finished run and returns where it was written.
type Store interface {
	Save(run *RunContext) (string, error)
}

// Sink receives a copy of every finalized run, after the Store. artifactPath is
// where the Store wrote the run, or "" if it did not.
type Sink interface {
	Write(ctx context.Context, run RunContext, artifactPath string) error
}

// Recorder accumulates the events of one run and persists them once.
//
// A Recorder is owned by a single logical run and is not safe for concurrent
// use. Every mutator becomes a no-op once Finalize has been called.
type Recorder struct {
	run         RunContext
	nextOrdinal int
	stepIndex   map[int]int
	artifactSet map[string]struct{}

	// failureIndex maps a failed step's ordinal to its ErrorRecord in run.Errors
	failureIndex map[int]int

	finalized    bool
	artifactPath string

	clock  types.Clock
	store  Store
	sinks  []Sink
	logger *log.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the clock used for every timestamp.
func WithClock(clock types.Clock) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithStore sets where Finalize persists the run. Without a store nothing is written.
func WithStore(store Store) Option {
	return func(r *Recorder) {
		r.store = store
	}
}

// WithSinks adds sinks that receive the finalized run.
func WithSinks(sinks ...Sink) Option {
	return func(r *Recorder) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *log.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// New starts recording a run. A missing ID is filled with a UUID and the
// start time is taken from the clock.
func New(meta Metadata, opts ...Option) *Recorder {
	r := &Recorder{
		nextOrdinal: 1,
		stepIndex:   make(map[int]int),
		artifactSet: make(map[string]struct{}),

		failureIndex: make(map[int]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.clock = types.OrReal(r.clock)
	if r.logger == nil {
		r.logger = logging.For("recorder")
	}

	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	meta.StartedAt = r.clock.Now()
	meta.CompletedAt = nil
	meta.Status = RunStarted
	meta.Tags = dedupe(meta.Tags)

	r.run = RunContext{
		Metadata:      meta,
		Steps:         []Step{},
		ExternalCalls: []ExternalCall{},
		Assertions:    []Assertion{},
		Errors:        []ErrorRecord{},
		Artifacts:     []string{},
		Metrics:       map[string]float64{},
	}
	return r
}

// ID returns the run identifier.
func (r *Recorder) ID() string {
	return r.run.Metadata.ID
}

// Finalized reports whether Finalize has been called.
func (r *Recorder) Finalized() bool {
	return r.finalized
}

// ArtifactPath returns where the run was persisted, or "" if it was not.
func (r *Recorder) ArtifactPath() string {
	return r.artifactPath
}

// StartStep opens a new step and returns its ordinal. Ordinals start at 1 and
// are never reused. After Finalize it returns 0.
func (r *Recorder) StartStep(action, description string) int {
	if r.finalized {
		return 0
	}
	ordinal := r.nextOrdinal
	r.nextOrdinal++

	r.run.Steps = append(r.run.Steps, Step{
		Ordinal:     ordinal,
		Action:      action,
		Description: description,
		StartedAt:   r.clock.Now(),
		Status:      StepInProgress,
	})
	r.stepIndex[ordinal] = len(r.run.Steps) - 1

	if r.run.Metadata.Status == RunStarted {
		r.run.Metadata.Status = RunRunning
	}
	return ordinal
}

// CompleteStep marks a step completed. data, if non-nil, is attached to the step.
func (r *Recorder) CompleteStep(ordinal int, data any) {
	step := r.openStep(ordinal)
	if step == nil {
		return
	}
	r.finishStep(step, StepCompleted, "")
	r.dropFailure(ordinal)
	if data != nil {
		step.Data = data
	}
}

// FailStep marks a step failed and records the error against it. Failing the
// same step again replaces that error rather than adding another.
func (r *Recorder) FailStep(ordinal int, err error) {
	step := r.openStep(ordinal)
	if step == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("step %d failed", ordinal)
	}
	r.finishStep(step, StepFailed, err.Error())
	r.dropFailure(ordinal)
	r.appendError(err, ordinal)
	r.failureIndex[ordinal] = len(r.run.Errors) - 1
}

// SkipStep marks a step skipped.
func (r *Recorder) SkipStep(ordinal int, reason string) {
	step := r.openStep(ordinal)
	if step == nil {
		return
	}
	r.finishStep(step, StepSkipped, reason)
	r.dropFailure(ordinal)
}

// AddExternalCall records a request/response exchange. Missing request IDs and
// observation times are filled in.
func (r *Recorder) AddExternalCall(call ExternalCall) {
	if r.finalized {
		return
	}
	if call.RequestID == "" {
		call.RequestID = uuid.NewString()
	}
	if call.ObservedAt.IsZero() {
		call.ObservedAt = r.clock.Now()
	}
	call.RequestHeaders = cloneHeaders(call.RequestHeaders)
	call.ResponseHeaders = cloneHeaders(call.ResponseHeaders)
	call.DurationMs = cloneInt64(call.DurationMs)
	r.run.ExternalCalls = append(r.run.ExternalCalls, call)
}

// AddAssertion records an assertion. A nil err means it passed.
func (r *Recorder) AddAssertion(description string, err error) {
	if r.finalized {
		return
	}
	a := Assertion{
		Description: description,
		Status:      AssertionPassed,
		ObservedAt:  r.clock.Now(),
	}
	if err != nil {
		a.Status = AssertionFailed
		a.Error = err.Error()
	}
	r.run.Assertions = append(r.run.Assertions, a)
}

// AddError records an error. relatedStep is the ordinal it belongs to, or 0.
func (r *Recorder) AddError(err error, relatedStep int) {
	if r.finalized || err == nil {
		return
	}
	r.appendError(err, relatedStep)
}

// AddArtifact records an artifact path. Duplicates are ignored.
func (r *Recorder) AddArtifact(path string) {
	if r.finalized || path == "" {
		return
	}
	if _, ok := r.artifactSet[path]; ok {
		return
	}
	r.artifactSet[path] = struct{}{}
	r.run.Artifacts = append(r.run.Artifacts, path)
}

// RecordMetric stores a named measurement. Later values replace earlier ones.
func (r *Recorder) RecordMetric(name string, value float64) {
	if r.finalized || name == "" {
		return
	}
	r.run.Metrics[name] = value
}

// UpdateMetadata lets the owner adjust metadata. The run ID and start time
// cannot be changed. Setting a terminal Status makes Finalize keep it.
func (r *Recorder) UpdateMetadata(fn func(*Metadata)) {
	if r.finalized || fn == nil {
		return
	}
	meta := r.run.Metadata
	meta.Tags = append([]string(nil), meta.Tags...)
	fn(&meta)

	meta.ID = r.run.Metadata.ID
	meta.StartedAt = r.run.Metadata.StartedAt
	meta.CompletedAt = r.run.Metadata.CompletedAt
	meta.Tags = dedupe(meta.Tags)
	r.run.Metadata = meta
}

// Snapshot returns a copy of the current state.
func (r *Recorder) Snapshot() RunContext {
	return r.run.clone()
}

// Finalize closes the run and persists it with a background context.
func (r *Recorder) Finalize() {
	r.FinalizeContext(context.Background())
}

// FinalizeContext stamps completion, settles the final status, persists the run
// through the store and forwards it to every sink. Persistence failures are
// logged and never returned. Calls after the first do nothing.
func (r *Recorder) FinalizeContext(ctx context.Context) {
	if r.finalized {
		return
	}
	r.finalized = true

	completedAt := r.clock.Now()
	r.run.Metadata.CompletedAt = &completedAt
	if !r.run.Metadata.Status.Terminal() {
		r.run.Metadata.Status = r.deriveStatus()
	}
	r.run.TotalDurationMs = completedAt.Sub(r.run.Metadata.StartedAt).Milliseconds()

	if r.store != nil {
		path, err := r.store.Save(&r.run)
		if err != nil {
			r.logger.Error("persist run failed", "run", r.run.Metadata.ID, "name", r.run.Metadata.Name, "err", err)
		} else {
			r.artifactPath = path
			r.logger.Debug("run persisted", "run", r.run.Metadata.ID, "path", path)
		}
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, r.run.clone(), r.artifactPath); err != nil {
			r.logger.Warn("run sink failed", "run", r.run.Metadata.ID, "sink", fmt.Sprintf("%T", sink), "err", err)
		}
	}
}

func (r *Recorder) deriveStatus() RunStatus {
	if len(r.run.Errors) > 0 {
		return RunFailed
	}
	for _, s := range r.run.Steps {
		if s.Status == StepFailed {
			return RunFailed
		}
	}
	for _, a := range r.run.Assertions {
		if a.Status == AssertionFailed {
			return RunFailed
		}
	}
	return RunPassed
}

func (r *Recorder) openStep(ordinal int) *Step {
	if r.finalized {
		return nil
	}
	idx, ok := r.stepIndex[ordinal]
	if !ok {
		return nil
	}
	return &r.run.Steps[idx]
}

func (r *Recorder) finishStep(step *Step, status StepStatus, errMsg string) {
	now := r.clock.Now()
	duration := now.Sub(step.StartedAt).Milliseconds()
	step.Status = status
	step.CompletedAt = &now
	step.DurationMs = &duration
	step.Error = errMsg
}

func (r *Recorder) appendError(err error, relatedStep int) {
	rec := ErrorRecord{
		Message:    err.Error(),
		ObservedAt: r.clock.Now(),
	}
	// errors that carry a stack (pkg/errors style) print it with %+v
	if detailed := fmt.Sprintf("%+v", err); detailed != rec.Message {
		rec.Stack = detailed
	}
	if relatedStep > 0 {
		n := relatedStep
		rec.RelatedStep = &n
	}
	r.run.Errors = append(r.run.Errors, rec)
}

// dropFailure removes the error a previous FailStep recorded for ordinal.
// Errors added through AddError are kept.
func (r *Recorder) dropFailure(ordinal int) {
	idx, ok := r.failureIndex[ordinal]
	if !ok {
		return
	}
	delete(r.failureIndex, ordinal)
	r.run.Errors = append(r.run.Errors[:idx], r.run.Errors[idx+1:]...)
	for n, i := range r.failureIndex {
		if i > idx {
			r.failureIndex[n] = i - 1
		}
	}
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
