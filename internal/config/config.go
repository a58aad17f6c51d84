// Package config loads storecheck settings from TOML files, the environment and CLI flags.
package config

import (
	"time"

	"github.com/jzx17/storecheck/pkg/browser"
	"github.com/jzx17/storecheck/pkg/load"
	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/retry"
)

// Config is the effective storecheck configuration.
type Config struct {
	Run     RunConfig     `toml:"run" mapstructure:"run"`
	Retry   RetryConfig   `toml:"retry" mapstructure:"retry"`
	Browser BrowserConfig `toml:"browser" mapstructure:"browser"`
	API     APIConfig     `toml:"api" mapstructure:"api"`
	Load    LoadConfig    `toml:"load" mapstructure:"load"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
}

// RunConfig describes where runs execute and where their artifacts go.
type RunConfig struct {
	Environment  string `toml:"environment" mapstructure:"environment"`
	Target       string `toml:"target" mapstructure:"target"`
	ArtifactsDir string `toml:"artifacts_dir" mapstructure:"artifacts_dir"`
	Format       string `toml:"format" mapstructure:"format"`
}

type RetryConfig struct {
	MaxAttempts    int    `toml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMs int    `toml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	Backoff        string `toml:"backoff" mapstructure:"backoff"`
}

type BrowserConfig struct {
	Headless            bool   `toml:"headless" mapstructure:"headless"`
	BaseURL             string `toml:"base_url" mapstructure:"base_url"`
	WindowWidth         int    `toml:"window_width" mapstructure:"window_width"`
	WindowHeight        int    `toml:"window_height" mapstructure:"window_height"`
	TimeoutSeconds      int    `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
	ScreenshotOnFailure bool   `toml:"screenshot_on_failure" mapstructure:"screenshot_on_failure"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url" mapstructure:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type LoadConfig struct {
	VirtualUsers int `toml:"virtual_users" mapstructure:"virtual_users"`
	Iterations   int `toml:"iterations" mapstructure:"iterations"`
}

type HistoryConfig struct {
	// DatabasePath is the SQLite run index. Empty disables indexing.
	DatabasePath string `toml:"database_path" mapstructure:"database_path"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
}

// RetryPolicy builds the retry policy described by the retry section.
// Validate has already rejected unknown backoff names.
func (c Config) RetryPolicy() retry.Policy {
	delay := time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
	backoff, err := retry.ParseBackoff(c.Retry.Backoff)
	if err == nil && backoff == retry.BackoffLinear {
		return retry.NewLinearPolicy(c.Retry.MaxAttempts, delay)
	}
	return retry.NewExponentialPolicy(c.Retry.MaxAttempts, delay)
}

// BrowserOptions maps the browser section onto allocator options.
func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:     c.Browser.Headless,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		Timeout:      time.Duration(c.Browser.TimeoutSeconds) * time.Second,
	}
}

// SessionOptions maps the browser section onto session options. Screenshots
// go to the store's artifacts directory.
func (c Config) SessionOptions() []browser.SessionOption {
	return []browser.SessionOption{
		browser.WithBaseURL(c.Browser.BaseURL),
		browser.WithScreenshotOnFailure(c.Browser.ScreenshotOnFailure),
		browser.WithLocatorTimeout(time.Duration(c.Browser.TimeoutSeconds) * time.Second),
		browser.WithArtifactsDir(c.Store().ArtifactsDir()),
	}
}

// LoadPlan maps the load section onto a load plan.
func (c Config) LoadPlan() load.Plan {
	return load.Plan{
		VirtualUsers: c.Load.VirtualUsers,
		Iterations:   c.Load.Iterations,
	}
}

// APITimeout is the per-request HTTP client timeout.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Store opens the artifact store under run.artifacts_dir.
func (c Config) Store() *recorder.FileStore {
	format, err := recorder.ParseFormat(c.Run.Format)
	if err != nil {
		format = recorder.FormatJSON
	}
	return recorder.NewFileStore(c.Run.ArtifactsDir, recorder.WithFormat(format))
}
