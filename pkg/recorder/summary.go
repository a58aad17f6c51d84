package recorder

import (
	"sort"
	"time"
)

// Counts tallies run outcomes.
type Counts struct {
	Total      int `json:"total" yaml:"total"`
	Passed     int `json:"passed" yaml:"passed"`
	Failed     int `json:"failed" yaml:"failed"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Incomplete int `json:"incomplete" yaml:"incomplete"`
}

func (c *Counts) add(status RunStatus) {
	c.Total++
	switch status {
	case RunPassed:
		c.Passed++
	case RunFailed:
		c.Failed++
	case RunSkipped:
		c.Skipped++
	default:
		c.Incomplete++
	}
}

// FailedRun is the short form of a failed run in a summary.
type FailedRun struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Summary aggregates a set of runs.
type Summary struct {
	GeneratedAt     time.Time         `json:"generatedAt" yaml:"generatedAt"`
	Counts          Counts            `json:"counts" yaml:"counts"`
	PassRate        float64           `json:"passRate" yaml:"passRate"`
	TotalDurationMs int64             `json:"totalDurationMs" yaml:"totalDurationMs"`
	AvgDurationMs   float64           `json:"avgDurationMs" yaml:"avgDurationMs"`
	APICalls        int               `json:"apiCalls" yaml:"apiCalls"`
	Retries         int               `json:"retries" yaml:"retries"`
	ByCategory      map[string]Counts `json:"byCategory" yaml:"byCategory"`
	ByEnvironment   map[string]Counts `json:"byEnvironment" yaml:"byEnvironment"`
	Failed          []FailedRun       `json:"failed" yaml:"failed"`
}

// Summarize aggregates runs. PassRate is passed over finished (passed+failed) runs.
func Summarize(runs []RunContext, at time.Time) Summary {
	sum := Summary{
		GeneratedAt:   at,
		ByCategory:    map[string]Counts{},
		ByEnvironment: map[string]Counts{},
		Failed:        []FailedRun{},
	}

	for _, run := range runs {
		meta := run.Metadata
		sum.Counts.add(meta.Status)
		addTo(sum.ByCategory, keyOr(meta.Category), meta.Status)
		addTo(sum.ByEnvironment, keyOr(meta.Environment), meta.Status)

		sum.TotalDurationMs += run.TotalDurationMs
		sum.APICalls += len(run.ExternalCalls)
		sum.Retries += meta.RetryCount

		if meta.Status == RunFailed {
			fr := FailedRun{ID: meta.ID, Name: meta.Name, File: meta.File, Category: meta.Category}
			for _, e := range run.Errors {
				fr.Errors = append(fr.Errors, e.Message)
			}
			for _, a := range run.FailedAssertions() {
				fr.Errors = append(fr.Errors, a.Description+": "+a.Error)
			}
			sum.Failed = append(sum.Failed, fr)
		}
	}

	if finished := sum.Counts.Passed + sum.Counts.Failed; finished > 0 {
		sum.PassRate = float64(sum.Counts.Passed) / float64(finished)
	}
	if sum.Counts.Total > 0 {
		sum.AvgDurationMs = float64(sum.TotalDurationMs) / float64(sum.Counts.Total)
	}
	sort.Slice(sum.Failed, func(i, j int) bool {
		return sum.Failed[i].Name < sum.Failed[j].Name
	})
	return sum
}

func addTo(m map[string]Counts, key string, status RunStatus) {
	c := m[key]
	c.add(status)
	m[key] = c
}

func keyOr(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
