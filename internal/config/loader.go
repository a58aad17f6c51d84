package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

const (
	dirName  = ".storecheck"
	fileName = "config.toml"
)

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ProjectDir is used to locate .storecheck/config.toml. Defaults to CWD when empty.
	ProjectDir string
	// ConfigPath overrides the project config path if provided.
	ConfigPath string
	// UserDir overrides the home directory lookup for the user config.
	UserDir string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// Load returns the effective configuration after applying precedence:
// defaults < user (~/.storecheck/config.toml) < project (.storecheck/config.toml) < env (STORECHECK_*) < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	projectDir := opts.ProjectDir
	if projectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectDir = cwd
		}
	}

	if err := mergeConfigFile(v, userConfigPath(opts.UserDir)); err != nil {
		return Config{}, err
	}
	if err := mergeConfigFile(v, ProjectConfigPath(projectDir, opts.ConfigPath)); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(v); err != nil {
		return Config{}, err
	}
	for key, val := range opts.FlagOverrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("run.environment", def.Run.Environment)
	v.SetDefault("run.target", def.Run.Target)
	v.SetDefault("run.artifacts_dir", def.Run.ArtifactsDir)
	v.SetDefault("run.format", def.Run.Format)

	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay_ms", def.Retry.InitialDelayMs)
	v.SetDefault("retry.backoff", def.Retry.Backoff)

	v.SetDefault("browser.headless", def.Browser.Headless)
	v.SetDefault("browser.base_url", def.Browser.BaseURL)
	v.SetDefault("browser.window_width", def.Browser.WindowWidth)
	v.SetDefault("browser.window_height", def.Browser.WindowHeight)
	v.SetDefault("browser.timeout_seconds", def.Browser.TimeoutSeconds)
	v.SetDefault("browser.screenshot_on_failure", def.Browser.ScreenshotOnFailure)

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_seconds", def.API.TimeoutSeconds)

	v.SetDefault("load.virtual_users", def.Load.VirtualUsers)
	v.SetDefault("load.iterations", def.Load.Iterations)

	v.SetDefault("history.database_path", def.History.DatabasePath)

	v.SetDefault("log.level", def.Log.Level)
}

// mergeConfigFile merges the TOML config file if it exists.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides reads STORECHECK_* env vars and applies them.
func applyEnvOverrides(v *viper.Viper) error {
	for _, binding := range envBindings {
		val := os.Getenv(binding.Env)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, binding.Kind)
		if err != nil {
			return fmt.Errorf("%s: %w", binding.Env, err)
		}
		v.Set(binding.Key, parsed)
	}
	return nil
}

func userConfigPath(dir string) string {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = home
	}
	return filepath.Join(dir, dirName, fileName)
}

// ProjectConfigPath returns the project config file, honouring an explicit override.
func ProjectConfigPath(projectDir, override string) string {
	if override != "" {
		return override
	}
	if projectDir == "" {
		return ""
	}
	return filepath.Join(projectDir, dirName, fileName)
}

// WriteDefault writes the built-in configuration as TOML. Existing files are left untouched.
func WriteDefault(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	return Encode(f, DefaultConfig())
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
)

var envBindings = []struct {
	Env  string
	Key  string
	Kind valueKind
}{
	{"STORECHECK_ENVIRONMENT", "run.environment", kindString},
	{"STORECHECK_TARGET", "run.target", kindString},
	{"STORECHECK_ARTIFACTS_DIR", "run.artifacts_dir", kindString},
	{"STORECHECK_FORMAT", "run.format", kindString},
	{"STORECHECK_RETRY_MAX_ATTEMPTS", "retry.max_attempts", kindInt},
	{"STORECHECK_RETRY_INITIAL_DELAY_MS", "retry.initial_delay_ms", kindInt},
	{"STORECHECK_RETRY_BACKOFF", "retry.backoff", kindString},
	{"STORECHECK_HEADLESS", "browser.headless", kindBool},
	{"STORECHECK_BASE_URL", "browser.base_url", kindString},
	{"STORECHECK_BROWSER_TIMEOUT_SECONDS", "browser.timeout_seconds", kindInt},
	{"STORECHECK_SCREENSHOT_ON_FAILURE", "browser.screenshot_on_failure", kindBool},
	{"STORECHECK_API_BASE_URL", "api.base_url", kindString},
	{"STORECHECK_API_TIMEOUT_SECONDS", "api.timeout_seconds", kindInt},
	{"STORECHECK_VIRTUAL_USERS", "load.virtual_users", kindInt},
	{"STORECHECK_ITERATIONS", "load.iterations", kindInt},
	{"STORECHECK_DB", "history.database_path", kindString},
	{"STORECHECK_LOG_LEVEL", "log.level", kindString},
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	switch kind {
	case kindString:
		return raw, nil
	case kindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		return v, nil
	case kindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value kind")
	}
}
