// Package mcpserver exposes the registered tools over the Model Context
// Protocol. The agent process spawns this server as a stdio subprocess
// and calls tools through the session; every result travels back as
// text, with domain failures flagged as error results rather than
// protocol errors.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"foodcourt/internal/domain"
)

const (
	serverName    = "food_ordering"
	serverVersion = "1.0.0"
)

// Server wraps an MCP server around a tool executor.
type Server struct {
	mcp      *server.MCPServer
	executor domain.ToolExecutor
	logger   *slog.Logger
	names    []string
}

// New registers every schema the executor advertises as an MCP tool.
// The raw JSON schema passes through untouched so the model sees the
// same parameter contract the executor validates against.
func New(executor domain.ToolExecutor, logger *slog.Logger) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
		executor: executor,
		logger:   logger,
	}

	for _, schema := range executor.Schemas() {
		tool := mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters)
		s.mcp.AddTool(tool, s.handler(schema.Name))
		s.names = append(s.names, schema.Name)
	}

	logger.Info("tool server ready", "tools", len(s.names))
	return s
}

// ToolNames returns the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	return s.names
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool, err := s.executor.Get(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s", name)), nil
		}

		s.logger.Debug("tool call received", "tool", name)

		result, err := tool.Execute(ctx, rawArguments(request))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.IsError {
			return mcp.NewToolResultError(result.Content), nil
		}
		return mcp.NewToolResultText(result.Content), nil
	}
}

// rawArguments re-encodes the request arguments as a JSON object.
// Absent or unencodable arguments become the empty object so tools
// always receive valid JSON.
func rawArguments(request mcp.CallToolRequest) json.RawMessage {
	args := request.GetArguments()
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// ServeStdio serves the MCP session on the process stdio until ctx is
// canceled or stdin closes. Callers must route their own logging to
// stderr first since stdout carries the protocol.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve runs the stdio session over the given reader and writer.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	return stdio.Listen(ctx, in, out)
}
