// Package runmcp exposes persisted runs to coding agents over MCP.
package runmcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jzx17/storecheck/pkg/recorder"
)

// NewServer creates an MCP server with the run tools registered.
func NewServer(version string, store *recorder.FileStore) *server.MCPServer {
	h := &Handlers{Store: store}
	s := server.NewMCPServer(
		"storecheck",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("runs/list",
			mcp.WithDescription("List recorded test runs, newest first"),
			mcp.WithString("status", mcp.Description("Only runs with this status: passed, failed, skipped, running, started")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("runs/get",
			mcp.WithDescription("Return the full recorded context of one run: steps, API calls, assertions, errors, artifacts, metrics"),
			mcp.WithString("run", mcp.Required(), mcp.Description("Run ID or artifact file name")),
		),
		h.HandleGet,
	)

	s.AddTool(
		mcp.NewTool("runs/failures",
			mcp.WithDescription("Return only what went wrong in one run: failed steps, failed assertions and errors"),
			mcp.WithString("run", mcp.Required(), mcp.Description("Run ID or artifact file name")),
		),
		h.HandleFailures,
	)

	s.AddTool(
		mcp.NewTool("runs/summary",
			mcp.WithDescription("Aggregate pass/fail counts across all recorded runs"),
		),
		h.HandleSummary,
	)

	return s
}

// Serve runs the server over stdio until stdin closes.
func Serve(version string, store *recorder.FileStore) error {
	return server.ServeStdio(NewServer(version, store))
}
