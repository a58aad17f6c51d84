package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jzx17/storecheck/internal/config"
	"github.com/jzx17/storecheck/internal/logging"
)

// Version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	artifacts  string

	cfg    config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "storecheck",
		Short:         "Inspect and produce storefront e2e run artifacts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default .storecheck/config.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.artifacts, "artifacts", "", "artifacts directory")

	root.AddCommand(
		newRunsCmd(a),
		newConfigCmd(a),
		newAPICmd(a),
		newMCPCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("log-level") {
		overrides["log.level"] = a.logLevel
	}
	if cmd.Flags().Changed("artifacts") {
		overrides["run.artifacts_dir"] = a.artifacts
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath:    a.configPath,
		FlagOverrides: overrides,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.DefaultOptions()
	opts.Level = cfg.Log.Level
	opts.Output = cmd.ErrOrStderr()
	a.logger = logging.New(opts)
	logging.SetDefault(a.logger)
	a.logger.Debug("config loaded", "artifacts", cfg.Run.ArtifactsDir, "environment", cfg.Run.Environment)
	return nil
}
