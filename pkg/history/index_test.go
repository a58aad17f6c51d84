package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/storecheck/internal/testutils"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/types"
)

var base = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func run(id string, status recorder.RunStatus, env string, offset time.Duration) recorder.RunContext {
	started := base.Add(offset)
	completed := started.Add(1500 * time.Millisecond)
	return recorder.RunContext{
		Metadata: recorder.Metadata{
			ID: id, Name: "run " + id, Category: "checkout", Environment: env,
			StartedAt: started, CompletedAt: &completed, Status: status,
		},
		Steps: []recorder.Step{
			{Ordinal: 1, Status: recorder.StepCompleted},
			{Ordinal: 2, Status: recorder.StepFailed},
		},
		ExternalCalls:   []recorder.ExternalCall{{Method: "GET"}},
		TotalDurationMs: 1500,
	}
}

func TestIndex_WriteGet(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Write(ctx, run("a", recorder.RunFailed, "staging", 0), "runs/a.json"))

	e, err := idx.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "run a", e.Name)
	assert.Equal(t, recorder.RunFailed, e.Status)
	assert.Equal(t, base, e.StartedAt)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, base.Add(1500*time.Millisecond), *e.CompletedAt)
	assert.EqualValues(t, 1500, e.DurationMs)
	assert.Equal(t, 2, e.Steps)
	assert.Equal(t, 1, e.FailedSteps)
	assert.Equal(t, 1, e.APICalls)
	assert.Equal(t, "runs/a.json", e.Artifact)

	_, err = idx.Get(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrRunNotFound))
}

func TestIndex_WriteUpserts(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Write(ctx, run("a", recorder.RunRunning, "staging", 0), ""))
	require.NoError(t, idx.Write(ctx, run("a", recorder.RunPassed, "staging", 0), "runs/a.json"))

	entries, err := idx.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, recorder.RunPassed, entries[0].Status)
	assert.Equal(t, "runs/a.json", entries[0].Artifact)
}

func TestIndex_ListFilters(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Write(ctx, run("old-pass", recorder.RunPassed, "staging", 0), ""))
	require.NoError(t, idx.Write(ctx, run("fail", recorder.RunFailed, "staging", time.Minute), ""))
	require.NoError(t, idx.Write(ctx, run("prod-pass", recorder.RunPassed, "production", 2*time.Minute), ""))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"prod-pass", "fail", "old-pass"}},
		{"by status", Filter{Status: recorder.RunPassed}, []string{"prod-pass", "old-pass"}},
		{"by environment", Filter{Environment: "staging"}, []string{"fail", "old-pass"}},
		{"combined", Filter{Status: recorder.RunPassed, Environment: "staging"}, []string{"old-pass"}},
		{"limit", Filter{Limit: 1}, []string{"prod-pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := idx.List(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestIndex_AsRecorderSink(t *testing.T) {
	idx := openTestIndex(t)
	mock := testutils.NewMockClock(t)
	mock.Set(base)

	store := recorder.NewFileStore(t.TempDir())
	rec := recorder.New(recorder.Metadata{ID: "sink-run", Name: "search", Environment: "staging"},
		recorder.WithClock(testutils.NewClockWrapper(mock)),
		recorder.WithStore(store),
		recorder.WithSinks(idx))

	rec.FailStep(rec.StartStep("search", "query shoes"), errors.New("no results"))
	rec.Finalize()

	e, err := idx.Get(context.Background(), "sink-run")
	require.NoError(t, err)
	assert.Equal(t, recorder.RunFailed, e.Status)
	assert.Equal(t, 1, e.FailedSteps)
	assert.Equal(t, 1, e.Errors)
	assert.Equal(t, rec.ArtifactPath(), e.Artifact)
}
