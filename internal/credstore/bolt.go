package credstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"reins/internal/api"
	"reins/internal/crypto"
	"reins/pkg/logging"
)

const envelopeVersion = 1

var recordsBucket = []byte("records")

// BoltStore is the durable Store implementation backed by a bbolt file.
// bbolt gives single-writer semantics on the backing file; the store
// serializes writes per record through bbolt's update transactions.
type BoltStore struct {
	db     *bolt.DB
	secret []byte
}

// OpenBolt opens (creating if needed) the store file and prepares the
// records bucket. The secret feeds the outer envelope's per-record key
// derivation.
func OpenBolt(path, secret string) (*BoltStore, error) {
	if secret == "" {
		return nil, api.NewAuthError("store encryption secret must not be empty", nil)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	logging.Debug("CredStore", "Opened credential store at %s", path)
	return &BoltStore{db: db, secret: []byte(secret)}, nil
}

// Close closes the backing file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put writes a record. An empty id generates one; an existing id replaces
// the payload, updates updatedAt, and bumps sync.version.
func (s *BoltStore) Put(ctx context.Context, params PutParams) (*Record, error) {
	if params.Provider == "" || params.AccountID == "" {
		return nil, api.NewValidationError("provider and accountId are required")
	}

	envelope, err := s.seal(params.Payload)
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

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)

		if raw := bucket.Get([]byte(id)); raw != nil {
			var existing Record
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("corrupt record %s: %w", id, err)
			}
			// Writing over a revoked record starts a fresh credential
			// lifetime; the tombstone must not survive the replacement.
			record.Sync.Version = existing.Sync.Version + 1
			if !existing.Revoked() {
				record.CreatedAt = existing.CreatedAt
			}
		}

		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), encoded)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist record %s: %w", id, err)
	}

	return record, nil
}

// Get returns the record by id, or a not found error. Revoked records are
// treated as absent.
func (s *BoltStore) Get(ctx context.Context, id string) (*Record, error) {
	var record *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(recordsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("corrupt record %s: %w", id, err)
		}
		record = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil || record.Revoked() {
		return nil, api.NewCredentialNotFoundError(id)
	}
	return record, nil
}

// Find returns all non-revoked records matching the query.
func (s *BoltStore) Find(ctx context.Context, query Query) ([]*Record, error) {
	if query.ID != "" {
		record, err := s.Get(ctx, query.ID)
		if err != nil {
			if api.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return []*Record{record}, nil
	}

	var results []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(_, raw []byte) error {
			var r Record
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			if r.Revoked() {
				return nil
			}
			if query.Provider != "" && r.Provider != query.Provider {
				return nil
			}
			if query.AccountID != "" && r.AccountID != query.AccountID {
				return nil
			}
			results = append(results, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Revoke marks the record terminal. Subsequent Get calls do not return it.
func (s *BoltStore) Revoke(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return api.NewCredentialNotFoundError(id)
		}

		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("corrupt record %s: %w", id, err)
		}
		if record.Revoked() {
			return api.NewCredentialNotFoundError(id)
		}

		now := time.Now().UTC()
		record.RevokedAt = &now
		record.UpdatedAt = now
		record.Sync.Version++
		record.Sync.UpdatedAt = now

		encoded, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), encoded)
	})
}

// DecryptPayload returns the original payload object of a record.
func (s *BoltStore) DecryptPayload(record *Record) (json.RawMessage, error) {
	return open(record, s.secret)
}

// seal encrypts a payload into the outer envelope with a fresh per-record
// salt and IV.
func (s *BoltStore) seal(payload interface{}) (*Envelope, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return seal(plaintext, s.secret)
}

func seal(plaintext, secret []byte) (*Envelope, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, api.NewAuthError("salt generation failed", err)
	}

	key := crypto.DeriveKey(secret, salt)
	ke, err := crypto.NewKeyEncryptionWithKey(key)
	if err != nil {
		return nil, err
	}
	enc, err := ke.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		V:          envelopeVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         enc.IV,
		Ciphertext: enc.Ciphertext,
	}, nil
}

func open(record *Record, secret []byte) (json.RawMessage, error) {
	if record == nil {
		return nil, api.NewValidationError("cannot decrypt nil record")
	}
	env := record.EncryptedPayload
	if env.V != envelopeVersion {
		return nil, api.NewAuthError(fmt.Sprintf("unsupported envelope version %d", env.V), nil)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, api.NewAuthError("envelope salt is not valid base64", err)
	}

	key := crypto.DeriveKey(secret, salt)
	ke, err := crypto.NewKeyEncryptionWithKey(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := ke.Decrypt(env.Ciphertext, env.IV)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(plaintext), nil
}

func checksum(ciphertext string) string {
	sum := sha256.Sum256([]byte(ciphertext))
	return hex.EncodeToString(sum[:])
}
