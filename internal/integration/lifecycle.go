package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"reins/internal/api"
	"reins/internal/vault"
	"reins/pkg/logging"
)

// Lifecycle drives integrations through the state machine and performs
// the side effects at transition boundaries: connect/disconnect calls,
// tool registration, credential revocation. State changes are attempted
// only after the side effect succeeds, so a failed connect never leaves a
// half-active integration.
//
// Lifecycle references the registry and tool registry by handle; neither
// references back.
type Lifecycle struct {
	registry *Registry
	tools    api.ToolRegistryHandler
	vault    vault.Vault

	mu       sync.Mutex
	machines map[string]*StateMachine
	locks    map[string]*sync.Mutex
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(registry *Registry, tools api.ToolRegistryHandler, credVault vault.Vault) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		tools:    tools,
		vault:    credVault,
		machines: make(map[string]*StateMachine),
		locks:    make(map[string]*sync.Mutex),
	}
}

// machine returns (creating if needed) the state machine for an id.
func (l *Lifecycle) machine(id string) *StateMachine {
	l.mu.Lock()
	defer l.mu.Unlock()
	sm, ok := l.machines[id]
	if !ok {
		sm = NewStateMachine(id)
		l.machines[id] = sm
	}
	return sm
}

// lock returns the per-integration mutex so transitions for the same id
// never interleave; transitions across different ids stay independent.
func (l *Lifecycle) lock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// AddListener registers a transition listener on one integration's
// machine.
func (l *Lifecycle) AddListener(integrationID, listenerID string, listener TransitionListener) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}
	l.machine(id).AddListener(listenerID, listener)
	return nil
}

// GetState returns the current state, or false when the id is unknown.
func (l *Lifecycle) GetState(integrationID string) (api.IntegrationState, bool) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sm, ok := l.machines[id]
	if !ok {
		return "", false
	}
	return sm.State(), true
}

// Enable drives the integration to ACTIVE: connect, register its
// operation tools, then transition. A failed connect returns the error
// with the state left at or before CONNECTED.
func (l *Lifecycle) Enable(ctx context.Context, integrationID string) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}

	lock := l.lock(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := l.registry.Get(id)
	if err != nil {
		return err
	}

	sm := l.machine(id)

	switch sm.State() {
	case api.StateActive:
		return nil
	case api.StateSuspended:
		// Resume: re-register tools, then transition back to active.
		if err := l.registerOperationTools(id, integ); err != nil {
			return err
		}
		return sm.Transition(api.StateActive)
	case api.StateDisconnected:
		if err := sm.Transition(api.StateInstalled); err != nil {
			return err
		}
	}

	if sm.State() == api.StateInstalled {
		if err := sm.Transition(api.StateConfigured); err != nil {
			return err
		}
	}

	switch sm.State() {
	case api.StateConfigured:
		if err := integ.Connect(ctx); err != nil {
			return api.NewConnectionError(fmt.Sprintf("integration %s failed to connect", id), err)
		}
		if err := sm.Transition(api.StateConnected); err != nil {
			return err
		}
	case api.StateConnected:
		// A prior enable connected but failed before going active; resume
		// from here without a second connect.
	default:
		return api.NewStateTransitionError(id, sm.State(), api.StateActive)
	}

	// Tool registration happens before the active transition so the new
	// tools are visible by the time listeners observe the state change.
	if err := l.registerOperationTools(id, integ); err != nil {
		return err
	}

	if err := sm.Transition(api.StateActive); err != nil {
		l.removeOperationTools(id, integ)
		return err
	}

	logging.Info("Lifecycle", "Integration %s is active (%d operations)", id, len(integ.Operations()))
	return nil
}

// Disable tears the integration down to DISCONNECTED: disconnect,
// withdraw its tools, revoke its credentials. Disabling an already
// disconnected integration is a no-op.
func (l *Lifecycle) Disable(ctx context.Context, integrationID string) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}

	lock := l.lock(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := l.registry.Get(id)
	if err != nil {
		return err
	}

	sm := l.machine(id)
	state := sm.State()
	if state == api.StateDisconnected {
		return nil
	}

	if state == api.StateActive || state == api.StateSuspended || state == api.StateConnected {
		if err := integ.Disconnect(ctx); err != nil {
			return api.NewConnectionError(fmt.Sprintf("integration %s failed to disconnect", id), err)
		}
	}

	l.removeOperationTools(id, integ)

	if _, err := l.vault.Revoke(ctx, id); err != nil {
		logging.Warn("Lifecycle", "Failed to revoke credentials for %s: %v", id, err)
	}

	if err := sm.Transition(api.StateDisconnected); err != nil {
		return err
	}

	logging.Info("Lifecycle", "Integration %s disconnected", id)
	return nil
}

// Suspend parks a known-unhealthy integration without tearing it down.
// Its operation tools are withdrawn until it resumes.
func (l *Lifecycle) Suspend(integrationID string) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}

	lock := l.lock(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := l.registry.Get(id)
	if err != nil {
		return err
	}

	sm := l.machine(id)
	l.removeOperationTools(id, integ)
	return sm.Transition(api.StateSuspended)
}

// registerOperationTools registers one "<id>.<op>" tool per operation.
func (l *Lifecycle) registerOperationTools(id string, integ api.Integration) error {
	if l.tools == nil {
		return nil
	}
	for _, op := range integ.Operations() {
		tool := operationTool(id, op, integ)
		if err := l.tools.RegisterTool(tool); err != nil {
			return api.NewOperationError(fmt.Sprintf("failed to register tool %s", tool.Name), err)
		}
	}
	return nil
}

// removeOperationTools withdraws every "<id>.*" tool. Missing tools are
// ignored.
func (l *Lifecycle) removeOperationTools(id string, integ api.Integration) {
	if l.tools == nil {
		return
	}
	for _, op := range integ.Operations() {
		name := fmt.Sprintf("%s.%s", id, op.Name)
		if err := l.tools.RemoveTool(name); err != nil && !api.IsNotFound(err) {
			logging.Warn("Lifecycle", "Failed to remove tool %s: %v", name, err)
		}
	}
}

// operationTool builds the direct-invocation tool for one operation.
func operationTool(id string, op api.Operation, integ api.Integration) api.Tool {
	opName := op.Name
	return api.Tool{
		Name:        fmt.Sprintf("%s.%s", id, opName),
		Description: op.Description,
		InputSchema: op.Parameters,
		Handler: func(ctx context.Context, args map[string]interface{}) (*api.CallToolResult, error) {
			result, err := integ.Execute(ctx, opName, args)
			if err != nil {
				return &api.CallToolResult{
					Content: []interface{}{fmt.Sprintf("Operation %s failed: %v", opName, err)},
					IsError: true,
				}, nil
			}
			encoded, err := json.Marshal(result)
			if err != nil {
				return nil, err
			}
			return &api.CallToolResult{Content: []interface{}{string(encoded)}}, nil
		},
	}
}
