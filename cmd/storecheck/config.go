package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jzx17/storecheck/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or print storecheck configuration",
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		// init must work before any valid config exists
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				path = config.ProjectConfigPath(cwd, "")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "destination (default .storecheck/config.toml)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Encode(cmd.OutOrStdout(), a.cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
