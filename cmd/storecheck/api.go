package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jzx17/storecheck/pkg/apicheck"
	"github.com/jzx17/storecheck/pkg/history"
	"github.com/jzx17/storecheck/pkg/recorder"
)

// Suite is a YAML file of API checks recorded as one run.
//
//	name: catalog smoke
//	category: api
//	checks:
//	  - name: list products
//	    path: /products
//	    expect:
//	      - status == 200
//	      - body.count > 0
type Suite struct {
	Name     string           `yaml:"name"`
	Category string           `yaml:"category"`
	Tags     []string         `yaml:"tags"`
	Checks   []apicheck.Check `yaml:"checks"`
}

// LoadSuite reads and checks a suite file.
func LoadSuite(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("read suite: %w", err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Suite{}, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if len(s.Checks) == 0 {
		return Suite{}, fmt.Errorf("suite %s has no checks", path)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

func newAPICmd(a *app) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "api <suite.yaml>",
		Short: "Run a suite of API checks and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := LoadSuite(args[0])
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = a.cfg.API.BaseURL
			}
			res, err := runSuite(cmd.Context(), a, suite, baseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", statusIcon(res.status), suite.Name, res.status)
			if res.artifact != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  artifact: %s\n", res.artifact)
			}
			if res.err != nil {
				return fmt.Errorf("suite %s failed: %w", suite.Name, res.err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default api.base_url)")
	return cmd
}

type suiteResult struct {
	status   recorder.RunStatus
	artifact string
	err      error
}

// runSuite records the suite as one run. The returned error covers setup
// problems only; check failures are reported in suiteResult.
func runSuite(ctx context.Context, a *app, suite Suite, baseURL string) (suiteResult, error) {
	opts := []recorder.Option{
		recorder.WithStore(a.cfg.Store()),
		recorder.WithLogger(a.logger.WithPrefix("recorder")),
	}
	if path := a.cfg.History.DatabasePath; path != "" {
		idx, err := openIndex(path)
		if err != nil {
			return suiteResult{}, err
		}
		defer idx.Close()
		opts = append(opts, recorder.WithSinks(idx))
	}

	rec := recorder.New(recorder.Metadata{
		Name:        suite.Name,
		Category:    suite.Category,
		Tags:        suite.Tags,
		Environment: a.cfg.Run.Environment,
		Target:      a.cfg.Run.Target,
	}, opts...)

	runner := &apicheck.Runner{
		Client: &http.Client{
			Transport: apicheck.NewTransport(nil, rec),
			Timeout:   a.cfg.APITimeout(),
		},
		BaseURL:  baseURL,
		Recorder: rec,
		Retry:    a.cfg.RetryPolicy(),
		Logger:   a.logger.WithPrefix("apicheck"),
	}
	runErr := runner.Run(ctx, suite.Checks...)
	rec.FinalizeContext(ctx)

	run := rec.Snapshot()
	return suiteResult{status: run.Metadata.Status, artifact: rec.ArtifactPath(), err: runErr}, nil
}

func openIndex(path string) (*history.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return history.Open(path)
}

func statusIcon(s recorder.RunStatus) string {
	if s == recorder.RunPassed {
		return "✓"
	}
	return "✗"
}
