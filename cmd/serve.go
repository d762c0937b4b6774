package cmd

import (
	"fmt"

	"github.com/mj1618/mobile-mcp/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an MCP server exposing mobile_* tools",
	Long: `Start a Model Context Protocol (MCP) server that exposes device reading,
verified actions, popup handling and script generation as tools. Each device
gets its own session, so agents may drive several devices at once.

Supported transports:
  stdio             Standard I/O (default, for MCP clients)
  streamable-http   Streamable HTTP transport (for remote agents)

Examples:
  mobile-mcp serve
  mobile-mcp serve --transport streamable-http --port 8080
  mobile-mcp serve --cache-ttl 0`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("transport", "", "Transport: stdio, streamable-http (default: server.transport)")
	serveCmd.Flags().Int("port", 0, "HTTP port for streamable-http transport (default: server.port)")
	serveCmd.Flags().Duration("cache-ttl", -1, "Snapshot cache TTL, 0 to disable (default: server.cache_ttl)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
		cfg.Server.Transport = transport
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if ttl := durationFlag(cmd, "cache-ttl"); ttl >= 0 {
		cfg.Server.CacheTTL = ttl
	}

	m, err := newManager()
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.New(m, cfg).Serve()
}
