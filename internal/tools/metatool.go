package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reins/internal/api"
)

// MetaToolName is the fixed registry name of the integration meta-tool.
const MetaToolName = "integrations"

// Capability is one active integration's compact summary.
type Capability struct {
	ID         string
	Operations []string
}

// Entry renders the capability index form "<id>:<op1>,<op2>".
func (c Capability) Entry() string {
	return c.ID + ":" + strings.Join(c.Operations, ",")
}

// Backend supplies the meta-tool with integration data. The integration
// service implements it; the meta-tool itself stays free of lifecycle
// knowledge.
type Backend interface {
	// ActiveCapabilities returns the capability summaries of active
	// integrations only, in stable order.
	ActiveCapabilities() []Capability

	// IntegrationOperations returns the full operation schemas of one
	// integration.
	IntegrationOperations(integrationID string) ([]api.Operation, error)

	// ExecuteOperation runs one operation on one integration.
	ExecuteOperation(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*api.OperationResult, error)
}

// MetaTool multiplexes every integration through one registry entry so
// the LLM's base tool schema stays constant-size no matter how many
// integrations are installed.
type MetaTool struct {
	backend Backend
}

// NewMetaTool creates the meta-tool over a backend.
func NewMetaTool(backend Backend) *MetaTool {
	return &MetaTool{backend: backend}
}

// Definition returns the registry entry for the meta-tool.
func (m *MetaTool) Definition() api.Tool {
	return api.Tool{
		Name:        MetaToolName,
		Description: "Access external service integrations. Use action=discover to list active integrations and their operation names, action=activate to load one integration's full operation schemas, action=execute to run an operation.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"discover", "activate", "execute"},
					"description": "What to do",
				},
				"integration_id": map[string]interface{}{
					"type":        "string",
					"description": "Integration id (required for activate and execute)",
				},
				"operation": map[string]interface{}{
					"type":        "string",
					"description": "Operation name (required for execute)",
				},
				"args": map[string]interface{}{
					"type":        "object",
					"description": "Operation arguments (execute only)",
				},
			},
			"required": []string{"action"},
		},
		Handler: m.Handle,
	}
}

// Handle dispatches one meta-tool call.
func (m *MetaTool) Handle(ctx context.Context, args map[string]interface{}) (*api.CallToolResult, error) {
	action, _ := args["action"].(string)
	switch action {
	case "discover":
		return m.discover()
	case "activate":
		return m.activate(args)
	case "execute":
		return m.execute(ctx, args)
	case "":
		return errorResult("action is required (discover, activate, or execute)"), nil
	default:
		return errorResult(fmt.Sprintf("unknown action %q (expected discover, activate, or execute)", action)), nil
	}
}

func (m *MetaTool) discover() (*api.CallToolResult, error) {
	capabilities := m.backend.ActiveCapabilities()
	index := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		index = append(index, capability.Entry())
	}
	return jsonResult(map[string]interface{}{
		"action":          "discover",
		"capabilityIndex": index,
	})
}

func (m *MetaTool) activate(args map[string]interface{}) (*api.CallToolResult, error) {
	id, _ := args["integration_id"].(string)
	if id == "" {
		return errorResult("integration_id is required for activate"), nil
	}

	operations, err := m.backend.IntegrationOperations(id)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	schemas := make([]map[string]interface{}, 0, len(operations))
	for _, op := range operations {
		schemas = append(schemas, map[string]interface{}{
			"name":        op.Name,
			"description": op.Description,
			"parameters":  op.Parameters,
		})
	}
	return jsonResult(map[string]interface{}{
		"action":        "activate",
		"integrationId": id,
		"operations":    schemas,
	})
}

func (m *MetaTool) execute(ctx context.Context, args map[string]interface{}) (*api.CallToolResult, error) {
	id, _ := args["integration_id"].(string)
	if id == "" {
		return errorResult("integration_id is required for execute"), nil
	}
	operation, _ := args["operation"].(string)
	if operation == "" {
		return errorResult("operation is required for execute"), nil
	}
	opArgs, _ := args["args"].(map[string]interface{})
	if opArgs == nil {
		opArgs = map[string]interface{}{}
	}

	result, err := m.backend.ExecuteOperation(ctx, id, operation, opArgs)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"action":        "execute",
		"integrationId": id,
		"operation":     operation,
		"result":        result,
	})
}

func jsonResult(payload map[string]interface{}) (*api.CallToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &api.CallToolResult{Content: []interface{}{string(encoded)}}, nil
}

func errorResult(message string) *api.CallToolResult {
	return &api.CallToolResult{
		Content: []interface{}{message},
		IsError: true,
	}
}
