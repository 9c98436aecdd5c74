// Package client is the daemon's MCP client, used by the CLI commands to
// reach a running daemon through the same meta-tool the LLM uses.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"reins/internal/api"
	"reins/internal/tools"
)

const requestTimeout = 30 * time.Second

// Client talks to a running daemon over MCP streamable HTTP.
type Client struct {
	endpoint string
	version  string
	mcp      *mcpclient.Client
}

// New creates a client for the daemon at endpoint (e.g.
// "http://localhost:8390/mcp").
func New(endpoint, version string) *Client {
	return &Client{endpoint: endpoint, version: version}
}

// Connect starts the transport and performs the MCP handshake.
func (c *Client) Connect(ctx context.Context) error {
	httpClient, err := mcpclient.NewStreamableHttpClient(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	if err := httpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.endpoint, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "reins-cli", Version: c.version}

	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if _, err := httpClient.Initialize(timeoutCtx, req); err != nil {
		httpClient.Close()
		return fmt.Errorf("MCP handshake failed: %w", err)
	}

	c.mcp = httpClient
	return nil
}

// Close shuts the transport down.
func (c *Client) Close() error {
	if c.mcp == nil {
		return nil
	}
	return c.mcp.Close()
}

// callMetaTool invokes the daemon's meta-tool and decodes the JSON text
// payload.
func (c *Client) callMetaTool(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if c.mcp == nil {
		return nil, api.NewOperationError("client is not connected", nil)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tools.MetaToolName
	req.Params.Arguments = args

	timeoutCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	result, err := c.mcp.CallTool(timeoutCtx, req)
	if err != nil {
		return nil, err
	}

	text := ""
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			text = textContent.Text
			break
		}
	}
	if result.IsError {
		return nil, api.NewOperationError(text, nil)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, api.NewOperationError("malformed meta-tool response", err)
	}
	return payload, nil
}

// Discover returns the capability index of active integrations.
func (c *Client) Discover(ctx context.Context) ([]string, error) {
	payload, err := c.callMetaTool(ctx, map[string]interface{}{"action": "discover"})
	if err != nil {
		return nil, err
	}

	raw, _ := payload["capabilityIndex"].([]interface{})
	index := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			index = append(index, s)
		}
	}
	return index, nil
}

// Activate returns the full operation schemas of one integration.
func (c *Client) Activate(ctx context.Context, integrationID string) ([]api.Operation, error) {
	payload, err := c.callMetaTool(ctx, map[string]interface{}{
		"action":         "activate",
		"integration_id": integrationID,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload["operations"])
	if err != nil {
		return nil, api.NewOperationError("malformed activate response", err)
	}
	var operations []api.Operation
	if err := json.Unmarshal(encoded, &operations); err != nil {
		return nil, api.NewOperationError("malformed activate response", err)
	}
	return operations, nil
}

// Execute runs one operation and returns the dual-channel result.
func (c *Client) Execute(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*api.OperationResult, error) {
	payload, err := c.callMetaTool(ctx, map[string]interface{}{
		"action":         "execute",
		"integration_id": integrationID,
		"operation":      operation,
		"args":           args,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(payload["result"])
	if err != nil {
		return nil, api.NewOperationError("malformed execute response", err)
	}
	var result api.OperationResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, api.NewOperationError("malformed execute response", err)
	}
	return &result, nil
}
