package runmcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/types"
)

const defaultListLimit = 20

// Handlers implements the run tools on top of a FileStore.
type Handlers struct {
	Store *recorder.FileStore
	// Now stamps summaries; defaults to time.Now
	Now func() time.Time
}

// RunListing is one row of runs/list.
type RunListing struct {
	File        string             `json:"file"`
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Status      recorder.RunStatus `json:"status"`
	StartedAt   time.Time          `json:"startedAt"`
	DurationMs  int64              `json:"durationMs"`
	FailedSteps int                `json:"failedSteps"`
}

// Failures is the runs/failures payload.
type Failures struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Status           recorder.RunStatus     `json:"status"`
	FailedSteps      []recorder.Step        `json:"failedSteps"`
	FailedAssertions []recorder.Assertion   `json:"failedAssertions"`
	Errors           []recorder.ErrorRecord `json:"errors"`
	// FailedCalls are API calls answered with a 4xx/5xx status or not at all
	FailedCalls []recorder.ExternalCall `json:"failedCalls"`
}

// HandleList implements the runs/list tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	status, _ := args["status"].(string)
	limit := defaultListLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	runs, err := h.Store.LoadAll(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Run.Metadata.StartedAt.After(runs[j].Run.Metadata.StartedAt)
	})

	out := make([]RunListing, 0, len(runs))
	for _, r := range runs {
		meta := r.Run.Metadata
		if status != "" && string(meta.Status) != status {
			continue
		}
		out = append(out, RunListing{
			File:        filepath.Base(r.Path),
			ID:          meta.ID,
			Name:        meta.Name,
			Status:      meta.Status,
			StartedAt:   meta.StartedAt,
			DurationMs:  r.Run.TotalDurationMs,
			FailedSteps: len(r.Run.FailedSteps()),
		})
		if len(out) == limit {
			break
		}
	}
	return jsonResult(out)
}

// HandleGet implements the runs/get tool.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, res := h.find(ctx, req)
	if res != nil {
		return res, nil
	}
	return jsonResult(run)
}

// HandleFailures implements the runs/failures tool.
func (h *Handlers) HandleFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, res := h.find(ctx, req)
	if res != nil {
		return res, nil
	}

	f := Failures{
		ID:               run.Metadata.ID,
		Name:             run.Metadata.Name,
		Status:           run.Metadata.Status,
		FailedSteps:      nonNil(run.FailedSteps()),
		FailedAssertions: nonNil(run.FailedAssertions()),
		Errors:           nonNil(run.Errors),
		FailedCalls:      []recorder.ExternalCall{},
	}
	for _, c := range run.ExternalCalls {
		if c.ResponseStatus == 0 || c.ResponseStatus >= 400 {
			f.FailedCalls = append(f.FailedCalls, c)
		}
	}
	return jsonResult(f)
}

// HandleSummary implements the runs/summary tool.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stored, err := h.Store.LoadAll(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	runs := make([]recorder.RunContext, len(stored))
	for i, s := range stored {
		runs[i] = s.Run
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return jsonResult(recorder.Summarize(runs, now()))
}

func (h *Handlers) find(ctx context.Context, req mcp.CallToolRequest) (recorder.RunContext, *mcp.CallToolResult) {
	ref, _ := req.GetArguments()["run"].(string)
	if ref == "" {
		return recorder.RunContext{}, errorResult("run argument is required")
	}
	// only bare names: agents must not read arbitrary paths
	if filepath.Base(ref) != ref {
		return recorder.RunContext{}, errorResult(fmt.Sprintf("run %q must be an ID or a file name, not a path", ref))
	}

	found, err := h.Store.Find(ctx, ref)
	if err != nil {
		if errors.Is(err, types.ErrRunNotFound) {
			return recorder.RunContext{}, errorResult(fmt.Sprintf("no run matches %q", ref))
		}
		return recorder.RunContext{}, errorResult(err.Error())
	}
	return found.Run, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
