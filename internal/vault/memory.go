package vault

import (
	"context"
	"sync"

	"reins/internal/api"
	"reins/pkg/logging"
)

// MemoryVault mirrors the vault interface with an in-process map. Used for
// tests and ephemeral deployments where no credential store is configured.
type MemoryVault struct {
	mu    sync.RWMutex
	creds map[string]map[api.CredentialType]api.Credential
}

// NewMemory creates an empty in-memory vault.
func NewMemory() *MemoryVault {
	return &MemoryVault{
		creds: make(map[string]map[api.CredentialType]api.Credential),
	}
}

// Store keeps a deep copy of the credential so later caller mutation
// cannot corrupt vault state.
func (v *MemoryVault) Store(ctx context.Context, integrationID string, cred api.Credential) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}
	if cred == nil {
		return api.NewValidationError("cannot store nil credential for %s", id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	byType, ok := v.creds[id]
	if !ok {
		byType = make(map[api.CredentialType]api.Credential)
		v.creds[id] = byType
	}
	byType[cred.CredentialType()] = cred.Clone()

	logging.Debug("Vault", "Stored %s credential for integration %s (in-memory)", cred.CredentialType(), id)
	return nil
}

// Retrieve returns a deep copy of the first credential in priority order,
// or nil when none exists.
func (v *MemoryVault) Retrieve(ctx context.Context, integrationID string) (api.Credential, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	byType, ok := v.creds[id]
	if !ok {
		return nil, nil
	}
	for _, credType := range api.RetrievalOrder {
		if cred, ok := byType[credType]; ok {
			return cred.Clone(), nil
		}
	}
	return nil, nil
}

// RetrieveType returns a deep copy of the credential of one type, or nil.
func (v *MemoryVault) RetrieveType(ctx context.Context, integrationID string, credType api.CredentialType) (api.Credential, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if cred, ok := v.creds[id][credType]; ok {
		return cred.Clone(), nil
	}
	return nil, nil
}

// Revoke deletes every credential type for the integration.
func (v *MemoryVault) Revoke(ctx context.Context, integrationID string) (bool, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	byType, ok := v.creds[id]
	if !ok || len(byType) == 0 {
		return false, nil
	}
	delete(v.creds, id)
	return true, nil
}

// HasCredentials reports whether any credential type exists.
func (v *MemoryVault) HasCredentials(ctx context.Context, integrationID string) (bool, error) {
	cred, err := v.Retrieve(ctx, integrationID)
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

// GetStatus retrieves the preferred credential and classifies it.
func (v *MemoryVault) GetStatus(ctx context.Context, integrationID string) (api.CredentialStatus, error) {
	return statusOf(ctx, v, integrationID)
}
