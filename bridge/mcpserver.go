package bridge

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServerConfig names the MCP server presented to clients.
type MCPServerConfig struct {
	Name    string
	Version string
}

// NewMCPServer exposes the bridge's callables as MCP tools.
func NewMCPServer(b *Bridge, cfg MCPServerConfig) *server.MCPServer {
	if cfg.Name == "" {
		cfg.Name = "toolctl"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := server.NewMCPServer(cfg.Name, cfg.Version)
	SyncMCPTools(s, b)
	return s
}

// SyncMCPTools replaces the server's tool set with the bridge's current
// callables. Call it after the registry is rebuilt.
func SyncMCPTools(s *server.MCPServer, b *Bridge) {
	s.SetTools(mcpTools(b)...)
}

func mcpTools(b *Bridge) []server.ServerTool {
	callables := b.Callables()
	out := make([]server.ServerTool, 0, len(callables))
	for _, callable := range callables {
		schema := callable.JSONSchema()
		inputSchema := mcp.ToolInputSchema{Type: "object"}
		if properties, ok := schema["properties"].(map[string]any); ok {
			inputSchema.Properties = properties
		}
		if required, ok := schema["required"].([]string); ok {
			inputSchema.Required = required
		}
		out = append(out, server.ServerTool{
			Tool: mcp.Tool{
				Name:        callable.Name,
				Description: callable.Description,
				InputSchema: inputSchema,
			},
			Handler: mcpHandler(callable),
		})
	}
	return out
}

func mcpHandler(callable Callable) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := callable.Call(ctx, request.GetArguments())
		if strings.HasPrefix(text, ErrorPrefix) {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
