package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"foodcourt/internal/domain"
)

// mcpCallTimeout is the per-call timeout for tool execution over the bridge.
const mcpCallTimeout = 30 * time.Second

// Bridge connects to the food-ordering tool server over stdio and exposes
// its tools as domain.Tool instances. Tool names pass through unchanged so
// the model calls them exactly as the server advertises them.
type Bridge struct {
	client mcpClient
	tools  []domain.Tool
	logger *slog.Logger
}

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// NewBridge spawns the tool server process, initializes the MCP session,
// and discovers the advertised tools.
func NewBridge(ctx context.Context, command string, args []string, env map[string]string, logger *slog.Logger) (*Bridge, error) {
	c, err := mcpclient.NewStdioMCPClient(command, envSlice(env), args...)
	if err != nil {
		return nil, fmt.Errorf("spawn tool server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "foodcourt-agent",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize tool server", err)
	}

	b := &Bridge{client: c, logger: logger}
	if err := b.discoverTools(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}

	logger.Info("tool server connected", "command", command, "tools", len(b.tools))
	return b, nil
}

// newBridgeWithClient creates a Bridge with a pre-built client (for testing).
func newBridgeWithClient(ctx context.Context, c mcpClient, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{client: c, logger: logger}
	if err := b.discoverTools(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) discoverTools(ctx context.Context) error {
	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return domain.WrapOp("list tools", err)
	}

	for _, t := range result.Tools {
		adapter := newBridgedTool(b.client, t, b.logger)
		b.tools = append(b.tools, adapter)
		b.logger.Debug("tool discovered", "tool", t.Name)
	}
	return nil
}

// Tools returns all discovered tools as domain.Tool instances.
func (b *Bridge) Tools() []domain.Tool {
	return b.tools
}

// Close shuts down the tool server connection.
func (b *Bridge) Close() {
	if err := b.client.Close(); err != nil {
		b.logger.Warn("tool server close error", "error", err)
	}
}

// --- Bridged tool ---

// bridgedTool forwards a single remote tool call over the MCP session.
//
// Domain failures arrive as results with the error flag set and flow back
// to the model as data. A failed round trip means the server process is
// gone, so it surfaces as a Go error and aborts the turn.
type bridgedTool struct {
	client  mcpClient
	mcpTool mcp.Tool
	logger  *slog.Logger
}

func newBridgedTool(client mcpClient, t mcp.Tool, logger *slog.Logger) *bridgedTool {
	return &bridgedTool{
		client:  client,
		mcpTool: t,
		logger:  logger,
	}
}

func (a *bridgedTool) Name() string {
	return a.mcpTool.Name
}

func (a *bridgedTool) Description() string {
	desc := a.mcpTool.Description
	if desc == "" {
		desc = fmt.Sprintf("Remote tool %q", a.mcpTool.Name)
	}
	return desc
}

func (a *bridgedTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if a.mcpTool.InputSchema.Properties != nil || a.mcpTool.InputSchema.Required != nil {
		if data, err := json.Marshal(a.mcpTool.InputSchema); err == nil {
			params = data
		}
	}

	return domain.ToolSchema{
		Name:        a.mcpTool.Name,
		Description: a.Description(),
		Parameters:  params,
	}
}

func (a *bridgedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	args := map[string]interface{}{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return &domain.ToolResult{
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}, nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.mcpTool.Name
	callReq.Params.Arguments = args

	a.logger.Debug("tool call", "tool", a.mcpTool.Name)

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		return nil, domain.WrapOp("call tool "+a.mcpTool.Name, err)
	}

	return &domain.ToolResult{
		Content: extractMCPContent(result),
		IsError: result.IsError,
	}, nil
}

// extractMCPContent converts MCP CallToolResult content to a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			// For non-text content, marshal to JSON.
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// envSlice converts a map of env vars to KEY=VALUE slices.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
