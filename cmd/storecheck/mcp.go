package main

import (
	"github.com/spf13/cobra"

	"github.com/jzx17/storecheck/pkg/runmcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve recorded runs to agents over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.logger.Info("serving runs over stdio", "artifacts", a.cfg.Run.ArtifactsDir)
			return runmcp.Serve(version, a.cfg.Store())
		},
	}
}
