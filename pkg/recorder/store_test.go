package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/storecheck/pkg/types"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"checkout", "checkout"},
		{"Checkout flow: guest user", "Checkout_flow_guest_user"},
		{"cart/../../etc/passwd", "cart_.._.._etc_passwd"},
		{"  ", "run"},
		{"", "run"},
		{"***", "run"},
		{"v1.2-beta_test", "v1.2-beta_test"},
		{"a___b", "a_b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "search_results_1700000000123.json", FileName("search results", at, "json"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func sampleRun(id, name string, status RunStatus) *RunContext {
	completed := start.Add(3 * time.Second)
	related := 1
	return &RunContext{
		Metadata: Metadata{
			ID: id, Name: name, Category: "cart", Environment: "staging",
			StartedAt: start, CompletedAt: &completed, Status: status,
		},
		Steps:           []Step{{Ordinal: 1, Action: "click", StartedAt: start, Status: StepFailed, Error: "boom"}},
		ExternalCalls:   []ExternalCall{{RequestID: "r1", Method: "GET", URL: "/api/cart", ResponseStatus: 200, ObservedAt: start}},
		Assertions:      []Assertion{},
		Errors:          []ErrorRecord{{Message: "boom", ObservedAt: start, RelatedStep: &related}},
		Artifacts:       []string{"a.png"},
		Metrics:         map[string]float64{"lcp_ms": 812.5},
		TotalDurationMs: 3000,
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			store := NewFileStore(t.TempDir(), WithFormat(format))
			run := sampleRun("id-1", "Guest checkout", RunFailed)

			path, err := store.Save(run)
			require.NoError(t, err)
			assert.Equal(t, store.RunsDir(), filepath.Dir(path))
			assert.True(t, strings.HasPrefix(filepath.Base(path), "Guest_checkout_"))
			assert.Equal(t, "."+string(format), filepath.Ext(path))

			loaded, err := store.Load(path)
			require.NoError(t, err)
			assert.Equal(t, run.Metadata.ID, loaded.Metadata.ID)
			assert.Equal(t, RunFailed, loaded.Metadata.Status)
			assert.True(t, run.Metadata.StartedAt.Equal(loaded.Metadata.StartedAt))
			require.Len(t, loaded.Errors, 1)
			assert.Equal(t, 1, *loaded.Errors[0].RelatedStep)
			assert.Equal(t, 812.5, loaded.Metrics["lcp_ms"])
			assert.EqualValues(t, 3000, loaded.TotalDurationMs)

			byName, err := store.Load(filepath.Base(path))
			require.NoError(t, err)
			assert.Equal(t, "id-1", byName.Metadata.ID)
		})
	}
}

func TestFileStore_JSONFieldNames(t *testing.T) {
	store := NewFileStore(t.TempDir())
	path, err := store.Save(sampleRun("id-1", "fields", RunPassed))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"apiCalls"`, `"steps"`, `"assertions"`, `"errors"`, `"artifacts"`, `"metrics"`, `"metadata"`, `"totalDurationMs"`} {
		assert.Contains(t, string(data), key)
	}
}

func TestFileStore_CollisionGetsSuffix(t *testing.T) {
	store := NewFileStore(t.TempDir())
	run := sampleRun("id-1", "same", RunPassed)

	first, err := store.Save(run)
	require.NoError(t, err)
	second, err := store.Save(run)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "_2.json"), second)

	paths, err := store.List()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Save(sampleRun("id-1", "atomic", RunPassed))
	require.NoError(t, err)

	entries, err := os.ReadDir(store.RunsDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".tmp-"))
}

func TestFileStore_SaveFailsOnUnwritableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	_, err := NewFileStore(root).Save(sampleRun("id-1", "nope", RunPassed))
	assert.Error(t, err)
}

func TestFileStore_ListEmpty(t *testing.T) {
	paths, err := NewFileStore(filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFileStore_LoadAllAndFind(t *testing.T) {
	store := NewFileStore(t.TempDir())
	for i, name := range []string{"alpha", "beta", "gamma"} {
		_, err := store.Save(sampleRun("id-"+name, name, RunPassed))
		require.NoError(t, err, i)
	}

	runs, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "alpha", runs[0].Run.Metadata.Name)

	found, err := store.Find(context.Background(), "id-beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", found.Run.Metadata.Name)

	_, err = store.Find(context.Background(), "id-missing")
	assert.True(t, errors.Is(err, types.ErrRunNotFound))
}

func TestFileStore_WriteSummary(t *testing.T) {
	store := NewFileStore(t.TempDir())
	sum := Summarize([]RunContext{*sampleRun("a", "a", RunPassed)}, start)

	path, err := store.WriteSummary(sum)
	require.NoError(t, err)
	assert.Equal(t, store.SummaryDir(), filepath.Dir(path))

	paths, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, paths, "summaries are not listed as runs")
}
