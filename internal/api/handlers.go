package api

import (
	"context"
	"sync"
)

// IntegrationServiceHandler is the facade contract the service package
// registers. Consumers (CLI, daemon, meta-tool) reach it via
// GetIntegrationService.
type IntegrationServiceHandler interface {
	// Started reports whether the service has been started and not stopped.
	Started() bool

	// ListIntegrations returns every registered integration with its
	// config and current status.
	ListIntegrations() []IntegrationInfo

	// GetIntegrationStatus returns the status of one integration.
	GetIntegrationStatus(integrationID string) (IntegrationStatus, error)

	// EnableIntegration drives the integration to the active state.
	EnableIntegration(ctx context.Context, integrationID string) error

	// DisableIntegration tears the integration down to disconnected.
	DisableIntegration(ctx context.Context, integrationID string) error

	// ExecuteOperation routes one operation call through the meta-tool
	// pipeline. Refuses when the service is not started, the integration
	// is unknown, disabled, or not active.
	ExecuteOperation(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*OperationResult, error)
}

// ToolRegistryHandler is the contract of the tool registry.
type ToolRegistryHandler interface {
	RegisterTool(tool Tool) error
	RemoveTool(name string) error
	GetTool(name string) (Tool, bool)
	ListTools() []Tool
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error)
}

// WorkspaceHandler is the agent workspace collaborator: one directory per
// agent id under the per-user data root.
type WorkspaceHandler interface {
	Resolve(agentID string) (string, error)
	Create(agentID string) (string, error)
	Remove(agentID string) error
	Exists(agentID string) (bool, error)
}

// StreamPublisher fans a payload out to every connection subscribed to a
// stream key.
type StreamPublisher interface {
	Publish(streamKey string, payload interface{}) error
}

var (
	handlersMu         sync.RWMutex
	integrationService IntegrationServiceHandler
	toolRegistry       ToolRegistryHandler
	workspace          WorkspaceHandler
	streamPublisher    StreamPublisher
)

// RegisterIntegrationService registers the integration service handler.
func RegisterIntegrationService(handler IntegrationServiceHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	integrationService = handler
}

// GetIntegrationService returns the registered integration service handler,
// or nil if none is registered.
func GetIntegrationService() IntegrationServiceHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return integrationService
}

// RegisterToolRegistry registers the tool registry handler.
func RegisterToolRegistry(handler ToolRegistryHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	toolRegistry = handler
}

// GetToolRegistry returns the registered tool registry handler, or nil.
func GetToolRegistry() ToolRegistryHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return toolRegistry
}

// RegisterWorkspace registers the workspace handler.
func RegisterWorkspace(handler WorkspaceHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	workspace = handler
}

// GetWorkspace returns the registered workspace handler, or nil.
func GetWorkspace() WorkspaceHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return workspace
}

// RegisterStreamPublisher registers the stream publisher.
func RegisterStreamPublisher(handler StreamPublisher) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	streamPublisher = handler
}

// GetStreamPublisher returns the registered stream publisher, or nil.
func GetStreamPublisher() StreamPublisher {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return streamPublisher
}

// ResetForTesting clears every registered handler. Test-only.
func ResetForTesting() {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	integrationService = nil
	toolRegistry = nil
	workspace = nil
	streamPublisher = nil
}
