package service

import (
	"context"
	"sync"
	"time"

	"reins/internal/api"
	"reins/internal/credstore"
	"reins/internal/crypto"
	"reins/internal/integration"
	"reins/internal/refresh"
	"reins/internal/tools"
	"reins/internal/vault"
	"reins/pkg/logging"
)

// Options configures the integration service.
type Options struct {
	// Store is the persistent credential store. When nil the service
	// falls back to the in-memory vault.
	Store credstore.Store

	// MasterSecret encrypts credential payloads when Store is set.
	MasterSecret string

	// Vault overrides vault construction entirely. Test hook.
	Vault vault.Vault

	// ToolRegistry receives the meta-tool and per-operation tools. When
	// nil the service creates its own registry.
	ToolRegistry *tools.Registry

	// Integrations are bundled integrations registered as disabled on
	// startup.
	Integrations []api.Integration

	// Refresh tunes the refresh manager.
	Refresh refresh.Options
}

// Service is the integration runtime facade. It implements
// api.IntegrationServiceHandler for callers, tools.Backend for the
// meta-tool, and api.StatusUpdater for the refresh manager.
type Service struct {
	mu       sync.Mutex
	started  bool
	statuses map[string]api.IntegrationStatus

	vault     vault.Vault
	registry  *integration.Registry
	lifecycle *integration.Lifecycle
	tools     *tools.Registry
	refresh   *refresh.Manager
	metaTool  *tools.MetaTool
}

// New constructs the service, registers bundled integrations as
// disabled, and installs the instance in the api locator.
func New(opts Options) (*Service, error) {
	s := &Service{
		statuses: make(map[string]api.IntegrationStatus),
		registry: integration.NewRegistry(),
	}

	switch {
	case opts.Vault != nil:
		s.vault = opts.Vault
	case opts.Store != nil:
		keyEnc, err := crypto.NewKeyEncryption(opts.MasterSecret)
		if err != nil {
			return nil, err
		}
		s.vault = vault.NewEncrypted(opts.Store, keyEnc)
	default:
		s.vault = vault.NewMemory()
		logging.Warn("IntegrationService", "No credential store configured, credentials are held in memory only")
	}

	s.tools = opts.ToolRegistry
	if s.tools == nil {
		s.tools = tools.NewRegistry()
	}

	s.lifecycle = integration.NewLifecycle(s.registry, s.tools, s.vault)
	s.refresh = refresh.NewManager(s.vault, s, opts.Refresh)
	s.metaTool = tools.NewMetaTool(backend{s})

	for _, integ := range opts.Integrations {
		if err := s.registry.Register(integ); err != nil {
			return nil, err
		}
	}

	api.RegisterIntegrationService(s)
	api.RegisterToolRegistry(s.tools)
	return s, nil
}

// Vault exposes the credential vault for collaborators that store or
// refresh credentials (CLI, refresh plans).
func (s *Service) Vault() vault.Vault { return s.vault }

// Tools exposes the tool registry for transport mounting.
func (s *Service) Tools() *tools.Registry { return s.tools }

// Refresh exposes the refresh manager.
func (s *Service) Refresh() *refresh.Manager { return s.refresh }

// Start registers the meta-tool and marks the service started. Starting
// twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if _, ok := s.tools.GetTool(tools.MetaToolName); !ok {
		if err := s.tools.RegisterTool(s.metaTool.Definition()); err != nil {
			return err
		}
	}
	s.started = true

	logging.Info("IntegrationService", "Started with %d registered integrations", len(s.registry.List()))
	return nil
}

// Stop disconnects active and suspended integrations, withdraws the
// meta-tool, and cancels pending refreshes. Idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.refresh.CancelAll()

	var firstErr error
	for _, id := range s.registry.List() {
		state, ok := s.lifecycle.GetState(id)
		if !ok || (state != api.StateActive && state != api.StateSuspended) {
			continue
		}
		if err := s.lifecycle.Disable(ctx, id); err != nil {
			logging.Error("IntegrationService", err, "Failed to disable %s during shutdown", id)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := s.tools.RemoveTool(tools.MetaToolName); err != nil && !api.IsNotFound(err) {
		if firstErr == nil {
			firstErr = err
		}
	}

	logging.Info("IntegrationService", "Stopped")
	return firstErr
}

// Started reports whether the service is running.
func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ListIntegrations returns every registered integration with its config
// and current status.
func (s *Service) ListIntegrations() []api.IntegrationInfo {
	ids := s.registry.List()
	infos := make([]api.IntegrationInfo, 0, len(ids))
	for _, id := range ids {
		integ, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		config, err := s.registry.Config(id)
		if err != nil {
			continue
		}
		status, err := s.GetIntegrationStatus(id)
		if err != nil {
			status = api.IntegrationStatus{Indicator: api.IndicatorUnknown, UpdatedAt: time.Now()}
		}
		infos = append(infos, api.IntegrationInfo{
			Manifest: integ.Manifest(),
			Config:   config,
			Status:   status,
		})
	}
	return infos
}

// GetIntegrationStatus returns one integration's status. Background
// indicator pushes (refresh failures) take precedence over the
// integration's self-report.
func (s *Service) GetIntegrationStatus(integrationID string) (api.IntegrationStatus, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return api.IntegrationStatus{}, err
	}
	integ, err := s.registry.Get(id)
	if err != nil {
		return api.IntegrationStatus{}, err
	}

	state, ok := s.lifecycle.GetState(id)
	if !ok {
		state = api.StateInstalled
	}

	s.mu.Lock()
	pushed, hasPushed := s.statuses[id]
	s.mu.Unlock()

	if hasPushed {
		pushed.State = state
		return pushed, nil
	}

	status := api.IntegrationStatus{
		Indicator: api.IndicatorDisconnected,
		State:     state,
		UpdatedAt: time.Now(),
	}
	if state == api.StateActive || state == api.StateConnected {
		status = integ.Status()
		status.State = state
	}
	return status, nil
}

// EnableIntegration flips the config flag and drives the integration to
// active.
func (s *Service) EnableIntegration(ctx context.Context, integrationID string) error {
	if !s.Started() {
		return api.ErrServiceNotStarted
	}
	if err := s.registry.Enable(integrationID); err != nil {
		return err
	}
	if err := s.lifecycle.Enable(ctx, integrationID); err != nil {
		// Leave the flag on so a later retry can succeed without a
		// second enable call, but report the failure.
		return err
	}

	s.mu.Lock()
	id, _ := api.NormalizeIntegrationID(integrationID)
	delete(s.statuses, id)
	s.mu.Unlock()
	return nil
}

// DisableIntegration flips the config flag off and tears the integration
// down.
func (s *Service) DisableIntegration(ctx context.Context, integrationID string) error {
	if !s.Started() {
		return api.ErrServiceNotStarted
	}
	if err := s.registry.Disable(integrationID); err != nil {
		return err
	}
	s.refresh.Cancel(integrationID)
	return s.lifecycle.Disable(ctx, integrationID)
}

// ExecuteOperation routes one operation call through the meta-tool so
// programmatic callers share the LLM execution pipeline. The
// precondition failures are distinct: not started, unknown id, disabled,
// not active.
func (s *Service) ExecuteOperation(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*api.OperationResult, error) {
	if !s.Started() {
		return nil, api.ErrServiceNotStarted
	}
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}
	if err := s.checkExecutable(id); err != nil {
		return nil, err
	}

	result, err := s.tools.CallTool(ctx, tools.MetaToolName, map[string]interface{}{
		"action":         "execute",
		"integration_id": id,
		"operation":      operation,
		"args":           args,
	})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		message := "operation failed"
		if len(result.Content) > 0 {
			if text, ok := result.Content[0].(string); ok {
				message = text
			}
		}
		return api.NewErrorResult(api.CodeIntegrationError, message), nil
	}
	return decodeExecutePayload(result)
}

func (s *Service) checkExecutable(id string) error {
	config, err := s.registry.Config(id)
	if err != nil {
		return err
	}
	if !config.Enabled {
		return api.ErrIntegrationDisabled
	}
	state, ok := s.lifecycle.GetState(id)
	if !ok || state != api.StateActive {
		return api.ErrIntegrationNotActive
	}
	return nil
}

// backend adapts the service for the meta-tool. Execute goes straight to
// the integration (after the same precondition checks) instead of back
// through the meta-tool, which would recurse.
type backend struct {
	s *Service
}

func (b backend) ActiveCapabilities() []tools.Capability {
	return b.s.activeCapabilities()
}

func (b backend) IntegrationOperations(integrationID string) ([]api.Operation, error) {
	return b.s.integrationOperations(integrationID)
}

func (b backend) ExecuteOperation(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*api.OperationResult, error) {
	return b.s.executeDirect(ctx, integrationID, operation, args)
}

// activeCapabilities returns capability summaries for active
// integrations only, in registry order.
func (s *Service) activeCapabilities() []tools.Capability {
	var capabilities []tools.Capability
	for _, id := range s.registry.List() {
		state, ok := s.lifecycle.GetState(id)
		if !ok || state != api.StateActive {
			continue
		}
		integ, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		ops := integ.Operations()
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			names = append(names, op.Name)
		}
		capabilities = append(capabilities, tools.Capability{ID: id, Operations: names})
	}
	return capabilities
}

func (s *Service) integrationOperations(integrationID string) ([]api.Operation, error) {
	integ, err := s.registry.Get(integrationID)
	if err != nil {
		return nil, err
	}
	return integ.Operations(), nil
}

// executeDirect runs one operation against the integration after the
// executability checks.
func (s *Service) executeDirect(ctx context.Context, integrationID, operation string, args map[string]interface{}) (*api.OperationResult, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}
	if err := s.checkExecutable(id); err != nil {
		return nil, err
	}
	integ, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return integ.Execute(ctx, operation, args)
}

// UpdateStatus implements api.StatusUpdater. An auth_expired push
// suspends an active integration so its tools disappear until the user
// re-authenticates.
func (s *Service) UpdateStatus(integrationID string, indicator api.StatusIndicator, message string) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.statuses[id] = api.IntegrationStatus{
		Indicator: indicator,
		UpdatedAt: time.Now(),
		LastError: message,
	}
	s.mu.Unlock()

	if indicator != api.IndicatorAuthExpired {
		return
	}
	state, ok := s.lifecycle.GetState(id)
	if ok && state == api.StateActive {
		if err := s.lifecycle.Suspend(id); err != nil {
			logging.Warn("IntegrationService", "Failed to suspend %s after auth expiry: %v", id, err)
		}
	}
}
