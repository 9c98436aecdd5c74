package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"reins/internal/api"
	"reins/internal/credstore"
	"reins/internal/crypto"
	"reins/pkg/logging"
)

// innerEnvelopeVersion versions the per-integration wrapper independently
// of the store's outer envelope.
const innerEnvelopeVersion = 1

// innerEnvelope is the vault's own envelope over the JSON-serialized
// credential. It is the payload handed to the credential store, which
// wraps it in the outer envelope in turn.
type innerEnvelope struct {
	V          int    `json:"v"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// EncryptedVault composes the encrypted credential store with key
// encryption for durable, encrypted-at-rest credential custody.
type EncryptedVault struct {
	store  credstore.Store
	keyEnc *crypto.KeyEncryption
}

// NewEncrypted creates an encrypted vault over the given store and key
// encryption.
func NewEncrypted(store credstore.Store, keyEnc *crypto.KeyEncryption) *EncryptedVault {
	return &EncryptedVault{store: store, keyEnc: keyEnc}
}

// recordID builds the store key for one (integration, credential type).
func recordID(integrationID string, credType api.CredentialType) string {
	return fmt.Sprintf("integration:%s:%s", integrationID, credType)
}

// Store encrypts and persists a credential under
// integration:<id>:<type>. At most one credential per type coexists per
// integration; storing replaces the prior one.
func (v *EncryptedVault) Store(ctx context.Context, integrationID string, cred api.Credential) error {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return err
	}
	if cred == nil {
		return api.NewValidationError("cannot store nil credential for %s", id)
	}

	serialized, err := api.MarshalCredential(cred)
	if err != nil {
		return api.NewOperationError("failed to serialize credential", err)
	}

	encrypted, err := v.keyEnc.Encrypt(serialized)
	if err != nil {
		return api.NewAuthIntegrationError("credential encryption failed", err)
	}

	payload := innerEnvelope{
		V:          innerEnvelopeVersion,
		Ciphertext: encrypted.Ciphertext,
		IV:         encrypted.IV,
	}

	credType := cred.CredentialType()
	_, err = v.store.Put(ctx, credstore.PutParams{
		ID:        recordID(id, credType),
		Provider:  credstore.ProviderIntegration,
		AccountID: id,
		Type:      string(credType),
		Metadata: map[string]string{
			"integrationId":  id,
			"credentialType": string(credType),
		},
		Payload: payload,
	})
	if err != nil {
		return api.NewOperationError(fmt.Sprintf("failed to persist %s credential for %s", credType, id), err)
	}

	logging.Debug("Vault", "Stored %s credential for integration %s", credType, id)
	return nil
}

// Retrieve returns the first credential found in priority order, or nil
// when none exists.
func (v *EncryptedVault) Retrieve(ctx context.Context, integrationID string) (api.Credential, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}

	for _, credType := range api.RetrievalOrder {
		cred, err := v.retrieveNormalized(ctx, id, credType)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, nil
}

// RetrieveType returns the credential of one specific type, or nil.
func (v *EncryptedVault) RetrieveType(ctx context.Context, integrationID string, credType api.CredentialType) (api.Credential, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return nil, err
	}
	return v.retrieveNormalized(ctx, id, credType)
}

func (v *EncryptedVault) retrieveNormalized(ctx context.Context, id string, credType api.CredentialType) (api.Credential, error) {
	record, err := v.store.Get(ctx, recordID(id, credType))
	if err != nil {
		if api.IsNotFound(err) {
			return nil, nil
		}
		return nil, api.NewOperationError(fmt.Sprintf("credential store read failed for %s", id), err)
	}

	raw, err := v.store.DecryptPayload(record)
	if err != nil {
		return nil, api.NewAuthIntegrationError(fmt.Sprintf("failed to unwrap stored payload for %s", id), err)
	}

	var envelope innerEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, api.NewOperationError(fmt.Sprintf("malformed stored payload for %s", id), err)
	}
	if envelope.V != innerEnvelopeVersion {
		return nil, api.NewOperationError(fmt.Sprintf("unsupported credential envelope version %d for %s", envelope.V, id), nil)
	}

	serialized, err := v.keyEnc.Decrypt(envelope.Ciphertext, envelope.IV)
	if err != nil {
		return nil, api.NewAuthIntegrationError(fmt.Sprintf("credential decryption failed for %s", id), err)
	}

	cred, err := api.UnmarshalCredential(serialized)
	if err != nil {
		return nil, api.NewOperationError(fmt.Sprintf("malformed credential JSON for %s", id), err)
	}
	return cred, nil
}

// Revoke deletes every credential type for the integration. Returns true
// iff at least one was deleted.
func (v *EncryptedVault) Revoke(ctx context.Context, integrationID string) (bool, error) {
	id, err := api.NormalizeIntegrationID(integrationID)
	if err != nil {
		return false, err
	}

	revoked := false
	for _, credType := range api.RetrievalOrder {
		err := v.store.Revoke(ctx, recordID(id, credType))
		if err != nil {
			if api.IsNotFound(err) {
				continue
			}
			return revoked, api.NewOperationError(fmt.Sprintf("failed to revoke %s credential for %s", credType, id), err)
		}
		revoked = true
	}

	if revoked {
		logging.Info("Vault", "Revoked credentials for integration %s", id)
	}
	return revoked, nil
}

// HasCredentials reports whether any credential type exists for the
// integration.
func (v *EncryptedVault) HasCredentials(ctx context.Context, integrationID string) (bool, error) {
	cred, err := v.Retrieve(ctx, integrationID)
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

// GetStatus retrieves the preferred credential and classifies it.
func (v *EncryptedVault) GetStatus(ctx context.Context, integrationID string) (api.CredentialStatus, error) {
	return statusOf(ctx, v, integrationID)
}
