package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	kmcp "github.com/maxkornevpro/key/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes key validation
and administration as tools. Supports stdio (default) and HTTP transports.

In stdio mode the server speaks JSON-RPC over stdin/stdout, for clients that
launch it as a subprocess. The standalone HTTP mode has no authentication;
bind it to a local address or use the /mcp endpoint of 'key serve' instead.`,
		Example: `  key mcp                                  # stdio mode
  key mcp --transport http --addr 127.0.0.1:3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":3001", "HTTP listen address (only used with --transport http)")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runMCP() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := kmcp.NewMCPServer(a.keys, a.logger, versionString())

	switch a.cfg.MCP.Transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		a.logger.Warn("standalone MCP HTTP transport is unauthenticated", "addr", a.cfg.MCP.Addr)
		return mcpSrv.ServeHTTP(a.cfg.MCP.Addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", a.cfg.MCP.Transport)
	}
}
