package credstore

import (
	"context"
	"encoding/json"
	"time"
)

// ProviderIntegration is the provider value under which the vault files
// integration credentials.
const ProviderIntegration = "integration"

// Envelope is the outer encryption envelope of a stored record. The salt
// is per-record; the inner payload may itself be an envelope from the
// per-integration wrapper, so the two layers evolve independently.
type Envelope struct {
	V          int    `json:"v"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// SyncInfo carries the record's optimistic-sync bookkeeping. The checksum
// covers the encrypted payload only.
type SyncInfo struct {
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is one versioned encrypted entry.
type Record struct {
	ID               string            `json:"id"`
	Provider         string            `json:"provider"`
	AccountID        string            `json:"accountId"`
	Type             string            `json:"type"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	EncryptedPayload Envelope          `json:"encryptedPayload"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	RevokedAt        *time.Time        `json:"revokedAt,omitempty"`
	Sync             SyncInfo          `json:"sync"`
}

// Revoked reports whether the record has been terminally revoked.
func (r *Record) Revoked() bool { return r.RevokedAt != nil }

// PutParams describes a write. When ID is empty a new id is generated;
// writing an existing id replaces the payload and bumps the sync version.
type PutParams struct {
	ID        string
	Provider  string
	AccountID string
	Type      string
	Metadata  map[string]string
	Payload   interface{}
}

// Query addresses records either by id or by (provider, accountId).
type Query struct {
	ID        string
	Provider  string
	AccountID string
}

// Store is the record-oriented persistent store contract. Revoked records
// are never returned by Get or Find.
type Store interface {
	Put(ctx context.Context, params PutParams) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Find(ctx context.Context, query Query) ([]*Record, error)
	Revoke(ctx context.Context, id string) error
	DecryptPayload(record *Record) (json.RawMessage, error)
	Close() error
}
