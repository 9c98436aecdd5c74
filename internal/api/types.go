package api

import (
	"context"
	"time"
)

// IntegrationState is the lifecycle state of an installed integration.
// Exactly one state holds per integration at any time.
type IntegrationState string

const (
	StateInstalled    IntegrationState = "installed"
	StateConfigured   IntegrationState = "configured"
	StateConnected    IntegrationState = "connected"
	StateActive       IntegrationState = "active"
	StateSuspended    IntegrationState = "suspended"
	StateDisconnected IntegrationState = "disconnected"
)

// StatusIndicator is the coarse health indicator an integration reports.
type StatusIndicator string

const (
	IndicatorConnected    StatusIndicator = "connected"
	IndicatorDisconnected StatusIndicator = "disconnected"
	IndicatorAuthExpired  StatusIndicator = "auth_expired"
	IndicatorError        StatusIndicator = "error"
	IndicatorUnknown      StatusIndicator = "unknown"
)

// Operation describes a single callable operation an integration exposes.
type Operation struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Manifest is the static description of an integration.
type Manifest struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Author      string      `json:"author,omitempty"`
	Category    string      `json:"category,omitempty"`
	Auth        string      `json:"auth,omitempty"`
	Permissions []string    `json:"permissions,omitempty"`
	Platforms   []string    `json:"platforms,omitempty"`
	Operations  []Operation `json:"operations"`
}

// IntegrationConfig is the mutable per-integration configuration.
type IntegrationConfig struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// IntegrationStatus is the runtime status an integration reports.
type IntegrationStatus struct {
	Indicator StatusIndicator  `json:"indicator"`
	State     IntegrationState `json:"state"`
	UpdatedAt time.Time        `json:"updatedAt"`
	LastError string           `json:"lastError,omitempty"`
}

// IntegrationInfo is the combined view returned by list operations.
type IntegrationInfo struct {
	Manifest Manifest          `json:"manifest"`
	Config   IntegrationConfig `json:"config"`
	Status   IntegrationStatus `json:"status"`
}

// Integration is the plug-in contract every integration implements.
// The host never reflects on concrete types beyond this interface.
type Integration interface {
	Manifest() Manifest
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() IntegrationStatus
	Operations() []Operation
	Execute(ctx context.Context, operation string, args map[string]interface{}) (*OperationResult, error)
}

// StatusUpdater receives status indicator changes pushed by background
// workers (the refresh manager writes auth_expired through this on
// permanent refresh failure).
type StatusUpdater interface {
	UpdateStatus(integrationID string, indicator StatusIndicator, message string)
}

// CallToolResult represents the result of a tool call.
type CallToolResult struct {
	Content []interface{} `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolHandler executes a tool invocation. The context carries per-call
// values produced by the tool context factory.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*CallToolResult, error)

// Tool is a callable entry hosted by the tool registry. Integration
// operation tools follow the "<integrationId>.<operationName>" naming
// convention; the meta-tool is registered under a single fixed name.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
	Handler     ToolHandler            `json:"-"`
}

// ToolContextFactory produces the per-call context passed into tool
// executions. A nil factory means the caller's context is used as-is.
type ToolContextFactory func(ctx context.Context) context.Context
