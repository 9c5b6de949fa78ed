package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/maxkornevpro/key/internal/keys"
)

// Actor is the audit identity recorded for mutations made through MCP.
const Actor = "mcp"

// MCPServer wraps the mcp-go server with the key store tools and resources,
// so agents can validate, issue and administer keys.
type MCPServer struct {
	keys   *keys.Service
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all key tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(keysSvc *keys.Service, logger *slog.Logger, version string) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		keys:   keysSvc,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Key Store",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server, server.WithStdioContextFunc(withActor))
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return s.streamable().Start(addr)
}

// Handler returns the Streamable HTTP transport as an http.Handler so it
// can be mounted behind the admin middleware of the main server.
func (s *MCPServer) Handler() http.Handler {
	return s.streamable()
}

func (s *MCPServer) streamable() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.server,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return withActor(ctx)
		}),
	)
}

// withActor tags ctx with the MCP actor unless an admin identity was
// already attached by the HTTP auth middleware.
func withActor(ctx context.Context) context.Context {
	if keys.ActorFrom(ctx) != keys.SystemActor {
		return ctx
	}
	return keys.WithActor(ctx, Actor)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation(destructive bool) mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(destructive),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
