package credstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"reins/internal/api"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// Payloads go through the same outer envelope as the bolt store so
// encrypted-at-rest properties can be asserted against it.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	secret  []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(secret string) (*MemoryStore, error) {
	if secret == "" {
		return nil, api.NewAuthError("store encryption secret must not be empty", nil)
	}
	return &MemoryStore{
		records: make(map[string]*Record),
		secret:  []byte(secret),
	}, nil
}

// Put writes a record, generating an id when absent.
func (s *MemoryStore) Put(ctx context.Context, params PutParams) (*Record, error) {
	if params.Provider == "" || params.AccountID == "" {
		return nil, api.NewValidationError("provider and accountId are required")
	}

	plaintext, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, err
	}
	envelope, err := seal(plaintext, s.secret)
	if err != nil {
		return nil, err
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	record := &Record{
		ID:               id,
		Provider:         params.Provider,
		AccountID:        params.AccountID,
		Type:             params.Type,
		Metadata:         params.Metadata,
		EncryptedPayload: *envelope,
		CreatedAt:        now,
		UpdatedAt:        now,
		Sync: SyncInfo{
			Version:   1,
			Checksum:  checksum(envelope.Ciphertext),
			UpdatedAt: now,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[id]; ok {
		record.Sync.Version = existing.Sync.Version + 1
		if !existing.Revoked() {
			record.CreatedAt = existing.CreatedAt
		}
	}
	s.records[id] = record

	copied := *record
	return &copied, nil
}

// Get returns the record by id; revoked records are treated as absent.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok || record.Revoked() {
		return nil, api.NewCredentialNotFoundError(id)
	}
	copied := *record
	return &copied, nil
}

// Find returns all non-revoked records matching the query.
func (s *MemoryStore) Find(ctx context.Context, query Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Record
	for _, record := range s.records {
		if record.Revoked() {
			continue
		}
		if query.ID != "" && record.ID != query.ID {
			continue
		}
		if query.Provider != "" && record.Provider != query.Provider {
			continue
		}
		if query.AccountID != "" && record.AccountID != query.AccountID {
			continue
		}
		copied := *record
		results = append(results, &copied)
	}
	return results, nil
}

// Revoke marks the record terminal.
func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Revoked() {
		return api.NewCredentialNotFoundError(id)
	}

	now := time.Now().UTC()
	record.RevokedAt = &now
	record.UpdatedAt = now
	record.Sync.Version++
	record.Sync.UpdatedAt = now
	return nil
}

// DecryptPayload returns the original payload object of a record.
func (s *MemoryStore) DecryptPayload(record *Record) (json.RawMessage, error) {
	return open(record, s.secret)
}

// RawEnvelope exposes the persisted envelope of a record for
// encrypted-at-rest assertions in tests.
func (s *MemoryStore) RawEnvelope(id string) (Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return Envelope{}, false
	}
	return record.EncryptedPayload, true
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
