// Package mcpserver exposes the tool registry to MCP clients over
// streamable HTTP. The daemon runtime manages it as one of the supervised
// services.
package mcpserver

import (
	"context"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"reins/internal/tools"
	"reins/pkg/logging"
)

// Server is the MCP transport for the daemon.
type Server struct {
	addr     string
	registry *tools.Registry
	mcp      *server.MCPServer
	httpSrv  *server.StreamableHTTPServer
}

// New creates the MCP server. Tools are mounted at start time, after the
// integration service has registered the meta-tool.
func New(addr, version string, registry *tools.Registry) *Server {
	mcpServer := server.NewMCPServer(
		"reins",
		version,
		server.WithToolCapabilities(true),
	)
	return &Server{addr: addr, registry: registry, mcp: mcpServer}
}

// ID implements daemon.ManagedService.
func (s *Server) ID() string { return "mcp-transport" }

// Start mounts the registered tools and begins serving. The mount stays
// synced with the registry so per-integration tools appear and disappear
// with enable and disable. Transport errors after startup are logged;
// they do not bring the daemon down.
func (s *Server) Start(ctx context.Context) error {
	tools.Sync(s.mcp, s.registry)
	s.httpSrv = server.NewStreamableHTTPServer(s.mcp)

	go func() {
		logging.Info("MCP", "Serving MCP on %s", s.addr)
		if err := s.httpSrv.Start(s.addr); err != nil && err != http.ErrServerClosed {
			logging.Error("MCP", err, "Transport server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop shuts the transport down within the given context.
func (s *Server) Stop(ctx context.Context, sig os.Signal) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
