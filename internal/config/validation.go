package config

import (
	"fmt"
	"strings"
)

// Validate checks that a configuration can drive a run.
func Validate(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Run.ArtifactsDir) == "" {
		errs = append(errs, "run.artifacts_dir must not be empty")
	}
	if !oneOf(strings.ToLower(cfg.Run.Format), "json", "yaml", "yml") {
		errs = append(errs, "run.format must be json or yaml")
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if cfg.Retry.InitialDelayMs < 0 {
		errs = append(errs, "retry.initial_delay_ms cannot be negative")
	}
	if !oneOf(strings.ToLower(cfg.Retry.Backoff), "exponential", "exp", "linear") {
		errs = append(errs, "retry.backoff must be exponential or linear")
	}

	if cfg.Browser.WindowWidth < 1 || cfg.Browser.WindowHeight < 1 {
		errs = append(errs, "browser.window_width and browser.window_height must be >= 1")
	}
	if cfg.Browser.TimeoutSeconds < 1 {
		errs = append(errs, "browser.timeout_seconds must be >= 1")
	}
	if cfg.API.TimeoutSeconds < 1 {
		errs = append(errs, "api.timeout_seconds must be >= 1")
	}

	if cfg.Load.VirtualUsers < 1 {
		errs = append(errs, "load.virtual_users must be >= 1")
	}
	if cfg.Load.Iterations < 1 {
		errs = append(errs, "load.iterations must be >= 1")
	}

	if !oneOf(strings.ToLower(cfg.Log.Level), "debug", "info", "warn", "warning", "error") {
		errs = append(errs, "log.level must be debug, info, warn, or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(val string, options ...string) bool {
	for _, opt := range options {
		if val == opt {
			return true
		}
	}
	return false
}
