package vault

import (
	"context"
	"errors"
	"time"

	"reins/internal/api"
)

// Vault is the per-integration credential custodian consumed by
// integrations and the refresh manager.
//
// Retrieve searches credential types in the fixed priority order
// (oauth > api_key > local_path) and returns the first match, or nil when
// the integration holds no credentials. Returned credentials are copies;
// mutating them never corrupts vault state.
type Vault interface {
	Store(ctx context.Context, integrationID string, cred api.Credential) error
	Retrieve(ctx context.Context, integrationID string) (api.Credential, error)
	RetrieveType(ctx context.Context, integrationID string, credType api.CredentialType) (api.Credential, error)
	Revoke(ctx context.Context, integrationID string) (bool, error)
	HasCredentials(ctx context.Context, integrationID string) (bool, error)
	GetStatus(ctx context.Context, integrationID string) (api.CredentialStatus, error)
}

// statusOf derives the status of the integration's preferred credential.
// Validation failures (empty id) surface to the caller; retrieval failures
// classify as error.
func statusOf(ctx context.Context, v Vault, integrationID string) (api.CredentialStatus, error) {
	cred, err := v.Retrieve(ctx, integrationID)
	if err != nil {
		var ie *api.IntegrationError
		if errors.As(err, &ie) && ie.SubCode == api.SubCodeValidation {
			return api.CredentialError, err
		}
		return api.CredentialError, nil
	}
	return api.ClassifyCredential(cred, time.Now()), nil
}
