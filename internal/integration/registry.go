package integration

import (
	"sort"
	"sync"

	"reins/internal/api"
)

// entry pairs a registered integration with its mutable config. The
// registry exclusively owns these values; callers get copies of config
// data and the integration handle itself.
type entry struct {
	integration api.Integration
	config      api.IntegrationConfig
}

// Registry is the in-memory catalogue of installed integrations, keyed by
// the lowercase trimmed integration id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds an integration. Duplicate ids are refused.
func (r *Registry) Register(integ api.Integration) error {
	if integ == nil {
		return api.NewValidationError("cannot register nil integration")
	}
	id, err := api.NormalizeIntegrationID(integ.Manifest().ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return api.NewValidationError("integration %s already registered", id)
	}
	r.entries[id] = &entry{
		integration: integ,
		config:      api.IntegrationConfig{ID: id, Enabled: false},
	}
	return nil
}

// Get returns the integration by id.
func (r *Registry) Get(integrationID string) (api.Integration, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, api.NewIntegrationNotFoundError(id)
	}
	return e.integration, nil
}

// Config returns a copy of the integration's mutable config.
func (r *Registry) Config(integrationID string) (api.IntegrationConfig, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return api.IntegrationConfig{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return api.IntegrationConfig{}, api.NewIntegrationNotFoundError(id)
	}
	return e.config, nil
}

// List returns all registered ids in stable order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Enable flips the config flag on. Connection work belongs to the
// lifecycle manager, not the registry.
func (r *Registry) Enable(integrationID string) error {
	return r.setEnabled(integrationID, true)
}

// Disable flips the config flag off.
func (r *Registry) Disable(integrationID string) error {
	return r.setEnabled(integrationID, false)
}

func (r *Registry) setEnabled(integrationID string, enabled bool) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return api.NewIntegrationNotFoundError(id)
	}
	e.config.Enabled = enabled
	return nil
}
