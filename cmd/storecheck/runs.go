package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jzx17/storecheck/pkg/history"
	"github.com/jzx17/storecheck/pkg/recorder"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List, inspect and summarize recorded runs",
	}
	cmd.AddCommand(newRunsListCmd(a), newRunsShowCmd(a), newRunsSummarizeCmd(a))
	return cmd
}

// --- runs list ---

type listRow struct {
	File       string
	ID         string
	Name       string
	Status     recorder.RunStatus
	StartedAt  time.Time
	DurationMs int64
	Failed     int
}

func newRunsListCmd(a *app) *cobra.Command {
	var (
		status string
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				dbPath = a.cfg.History.DatabasePath
			}
			var (
				rows []listRow
				err  error
			)
			if useIndex(dbPath) {
				rows, err = listFromIndex(cmd, dbPath, status, limit)
			} else {
				rows, err = listFromStore(cmd, a.cfg.Store(), status, limit)
			}
			if err != nil {
				return err
			}
			printRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (passed, failed, skipped, ...)")
	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default history.database_path)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs (0 = all)")
	return cmd
}

// useIndex reports whether an existing history database should answer the listing.
func useIndex(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func listFromIndex(cmd *cobra.Command, path, status string, limit int) ([]listRow, error) {
	idx, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	entries, err := idx.List(cmd.Context(), history.Filter{Status: recorder.RunStatus(status), Limit: limit})
	if err != nil {
		return nil, err
	}
	rows := make([]listRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, listRow{
			File:       filepath.Base(e.Artifact),
			ID:         e.ID,
			Name:       e.Name,
			Status:     e.Status,
			StartedAt:  e.StartedAt,
			DurationMs: e.DurationMs,
			Failed:     e.FailedSteps,
		})
	}
	return rows, nil
}

func listFromStore(cmd *cobra.Command, store *recorder.FileStore, status string, limit int) ([]listRow, error) {
	runs, err := store.LoadAll(cmd.Context())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Run.Metadata.StartedAt.After(runs[j].Run.Metadata.StartedAt)
	})

	var rows []listRow
	for _, r := range runs {
		meta := r.Run.Metadata
		if status != "" && string(meta.Status) != status {
			continue
		}
		rows = append(rows, listRow{
			File:       filepath.Base(r.Path),
			ID:         meta.ID,
			Name:       meta.Name,
			Status:     meta.Status,
			StartedAt:  meta.StartedAt,
			DurationMs: r.Run.TotalDurationMs,
			Failed:     len(r.Run.FailedSteps()),
		})
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func printRows(w io.Writer, rows []listRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tNAME\tSTARTED\tDURATION\tFAILED STEPS\tFILE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%d\t%s\n",
			r.Status, r.Name, r.StartedAt.Local().Format(time.DateTime), r.DurationMs, r.Failed, r.File)
	}
	tw.Flush()
}

// --- runs show ---

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file|id>",
		Short: "Print one run artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := a.cfg.Store().Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(stored.Run, "", "  ")
			if err != nil {
				return fmt.Errorf("encode run: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// --- runs summarize ---

func newRunsSummarizeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Aggregate every recorded run and write a summary artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.cfg.Store()
			stored, err := store.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			runs := make([]recorder.RunContext, 0, len(stored))
			for _, s := range stored {
				runs = append(runs, s.Run)
			}
			sum := recorder.Summarize(runs, time.Now())

			path, err := store.WriteSummary(sum)
			if err != nil {
				return err
			}
			a.logger.Info("summary written", "path", path, "runs", sum.Counts.Total)

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(sum, "", "  ")
				if err != nil {
					return fmt.Errorf("encode summary: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			printSummary(out, sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum recorder.Summary) {
	c := sum.Counts
	fmt.Fprintf(w, "Runs: %d  passed: %d  failed: %d  skipped: %d  incomplete: %d\n",
		c.Total, c.Passed, c.Failed, c.Skipped, c.Incomplete)
	fmt.Fprintf(w, "Pass rate: %.1f%%  avg duration: %.0fms  api calls: %d  retries: %d\n",
		sum.PassRate*100, sum.AvgDurationMs, sum.APICalls, sum.Retries)
	for _, f := range sum.Failed {
		fmt.Fprintf(w, "\n  ✗ %s (%s)\n", f.Name, f.ID)
		for _, msg := range f.Errors {
			fmt.Fprintf(w, "    - %s\n", msg)
		}
	}
}
