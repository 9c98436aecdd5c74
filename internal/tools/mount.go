package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"reins/internal/api"
)

// Mount exposes every currently registered tool on an MCP server.
// Invocations route back through the registry so the context factory and
// panic isolation apply to MCP callers too.
func Mount(mcpServer *server.MCPServer, registry *Registry) {
	tools := registry.ListTools()
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, tool := range tools {
		serverTools = append(serverTools, serverTool(registry, tool))
	}
	mcpServer.AddTools(serverTools...)
}

// Sync mounts the currently registered tools and keeps the MCP server in
// step with later registry mutations, so tools registered by an enable
// after startup are exposed to MCP hosts and withdrawn again on disable.
func Sync(mcpServer *server.MCPServer, registry *Registry) {
	registry.AddChangeListener(func(tool api.Tool, removed bool) {
		if removed {
			mcpServer.DeleteTools(tool.Name)
			return
		}
		mcpServer.AddTools(serverTool(registry, tool))
	})
	Mount(mcpServer, registry)
}

// MountTool exposes one tool on an MCP server.
func MountTool(mcpServer *server.MCPServer, registry *Registry, name string) error {
	tool, ok := registry.GetTool(name)
	if !ok {
		return api.NewToolNotFoundError(name)
	}
	mcpServer.AddTools(serverTool(registry, tool))
	return nil
}

func serverTool(registry *Registry, tool api.Tool) server.ServerTool {
	name := tool.Name
	return server.ServerTool{
		Tool: mcp.Tool{
			Name:        name,
			Description: tool.Description,
			InputSchema: toInputSchema(tool.InputSchema),
		},
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]interface{})
			if args == nil {
				args = map[string]interface{}{}
			}

			result, err := registry.CallTool(ctx, name, args)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			text := renderContent(result.Content)
			if result.IsError {
				return mcp.NewToolResultError(text), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	}
}

// toInputSchema converts the registry's free-form JSON schema map into
// the MCP wire form. A nil schema becomes an empty object schema.
func toInputSchema(schema map[string]interface{}) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}
	if schema == nil {
		return out
	}
	if typ, ok := schema["type"].(string); ok && typ != "" {
		out.Type = typ
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = props
	}
	switch required := schema["required"].(type) {
	case []string:
		out.Required = required
	case []interface{}:
		for _, entry := range required {
			if name, ok := entry.(string); ok {
				out.Required = append(out.Required, name)
			}
		}
	}
	return out
}

func renderContent(content []interface{}) string {
	parts := make([]string, 0, len(content))
	for _, entry := range content {
		switch v := entry.(type) {
		case string:
			parts = append(parts, v)
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return strings.Join(parts, "\n")
}
