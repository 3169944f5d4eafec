// Package mcpserver exposes the command registry as MCP tools over stdio.
package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/commands"
	"nova_bridge/pkg/logging"
	"nova_bridge/pkg/version"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Commands is the part of the command registry the MCP server needs.
type Commands interface {
	Dispatch(ctx context.Context, name string, input string) bridge.Response
	Handlers() []commands.Handler
}

// Server publishes one tool per registered command.
type Server struct {
	cmds   Commands
	logger *slog.Logger
	srv    *mcpserver.MCPServer
}

// New builds the MCP server and registers a tool for every command.
func New(cmds Commands, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{cmds: cmds, logger: logger}
	s.srv = mcpserver.NewMCPServer(
		version.Name,
		version.Summary(),
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// Serve speaks MCP on the given streams until ctx is done or stdin closes.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	s.logger.Info("mcp_server_started", "tools", len(s.cmds.Handlers()))
	return mcpserver.NewStdioServer(s.srv).Listen(ctx, stdin, stdout)
}

func (s *Server) registerTools() {
	for _, h := range s.cmds.Handlers() {
		s.srv.AddTool(
			mcp.NewTool(h.Name(),
				mcp.WithDescription(h.Description()),
				mcp.WithString("message",
					mcp.Description("Text passed to the command"),
				),
			),
			s.toolHandler(h.Name()),
		)
	}
}

// toolHandler reports failures as tool errors so the client sees the reason.
func (s *Server) toolHandler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, _ = logging.EnsureRequestID(ctx)
		resp := s.cmds.Dispatch(ctx, name, request.GetString("message", ""))
		if !resp.OK() {
			return mcp.NewToolResultError(string(resp.Failure.Kind) + ": " + resp.Failure.Reason), nil
		}
		return mcp.NewToolResultText(resp.Text), nil
	}
}
