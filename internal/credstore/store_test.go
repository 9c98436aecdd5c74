package credstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reins/internal/api"
)

type payload struct {
	Secret string `json:"secret"`
	N      int    `json:"n"`
}

// openStores returns both implementations so every property is checked
// against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	boltStore, err := OpenBolt(filepath.Join(t.TempDir(), "credentials.db"), "store-secret")
	require.NoError(t, err)
	t.Cleanup(func() { boltStore.Close() })

	memStore, err := NewMemoryStore("store-secret")
	require.NoError(t, err)

	return map[string]Store{"bolt": boltStore, "memory": memStore}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			record, err := store.Put(ctx, PutParams{
				Provider:  ProviderIntegration,
				AccountID: "gmail",
				Type:      "oauth",
				Metadata:  map[string]string{"integrationId": "gmail", "credentialType": "oauth"},
				Payload:   payload{Secret: "super-secret-123", N: 7},
			})
			require.NoError(t, err)
			assert.NotEmpty(t, record.ID)
			assert.Equal(t, 1, record.Sync.Version)
			assert.NotEmpty(t, record.Sync.Checksum)

			fetched, err := store.Get(ctx, record.ID)
			require.NoError(t, err)

			raw, err := store.DecryptPayload(fetched)
			require.NoError(t, err)

			var restored payload
			require.NoError(t, json.Unmarshal(raw, &restored))
			assert.Equal(t, payload{Secret: "super-secret-123", N: 7}, restored)
		})
	}
}

func TestPutWithExplicitIDUpdatesAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			params := PutParams{
				ID:        "integration:gmail:oauth",
				Provider:  ProviderIntegration,
				AccountID: "gmail",
				Type:      "oauth",
				Payload:   payload{Secret: "v1"},
			}

			first, err := store.Put(ctx, params)
			require.NoError(t, err)
			assert.Equal(t, 1, first.Sync.Version)

			params.Payload = payload{Secret: "v2"}
			second, err := store.Put(ctx, params)
			require.NoError(t, err)
			assert.Equal(t, 2, second.Sync.Version)
			assert.Equal(t, first.CreatedAt, second.CreatedAt)
			assert.NotEqual(t, first.Sync.Checksum, second.Sync.Checksum)

			fetched, err := store.Get(ctx, "integration:gmail:oauth")
			require.NoError(t, err)
			raw, err := store.DecryptPayload(fetched)
			require.NoError(t, err)
			assert.Contains(t, string(raw), "v2")
		})
	}
}

func TestFindByProviderAndAccount(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, acct := range []string{"gmail", "gmail", "obsidian"} {
				_, err := store.Put(ctx, PutParams{
					Provider:  ProviderIntegration,
					AccountID: acct,
					Type:      "oauth",
					Payload:   payload{Secret: acct},
				})
				require.NoError(t, err)
			}

			records, err := store.Find(ctx, Query{Provider: ProviderIntegration, AccountID: "gmail"})
			require.NoError(t, err)
			assert.Len(t, records, 2)

			records, err = store.Find(ctx, Query{Provider: ProviderIntegration})
			require.NoError(t, err)
			assert.Len(t, records, 3)
		})
	}
}

func TestRevokeIsTerminal(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			record, err := store.Put(ctx, PutParams{
				Provider:  ProviderIntegration,
				AccountID: "gmail",
				Type:      "oauth",
				Payload:   payload{Secret: "s"},
			})
			require.NoError(t, err)

			require.NoError(t, store.Revoke(ctx, record.ID))

			_, err = store.Get(ctx, record.ID)
			require.Error(t, err)
			assert.True(t, api.IsNotFound(err))

			// Revoking twice reports not found.
			err = store.Revoke(ctx, record.ID)
			assert.True(t, api.IsNotFound(err))

			// Revoked records do not appear in Find either.
			records, err := store.Find(ctx, Query{Provider: ProviderIntegration, AccountID: "gmail"})
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestPutAfterRevokeStartsFreshRecord(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			params := PutParams{
				ID:        "integration:gmail:oauth",
				Provider:  ProviderIntegration,
				AccountID: "gmail",
				Type:      "oauth",
				Payload:   payload{Secret: "first"},
			}

			first, err := store.Put(ctx, params)
			require.NoError(t, err)
			require.NoError(t, store.Revoke(ctx, first.ID))

			// A write over the revoked id starts a fresh lifetime; the
			// tombstone must not leak into the replacement.
			params.Payload = payload{Secret: "second"}
			second, err := store.Put(ctx, params)
			require.NoError(t, err)
			assert.Nil(t, second.RevokedAt)
			assert.False(t, second.Revoked())

			fetched, err := store.Get(ctx, first.ID)
			require.NoError(t, err)
			raw, err := store.DecryptPayload(fetched)
			require.NoError(t, err)
			assert.Contains(t, string(raw), "second")

			records, err := store.Find(ctx, Query{Provider: ProviderIntegration, AccountID: "gmail"})
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

func TestEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("store-secret")
	require.NoError(t, err)

	record, err := store.Put(ctx, PutParams{
		ID:        "integration:gmail:oauth",
		Provider:  ProviderIntegration,
		AccountID: "gmail",
		Type:      "oauth",
		Payload:   payload{Secret: "super-secret-123"},
	})
	require.NoError(t, err)

	env, ok := store.RawEnvelope(record.ID)
	require.True(t, ok)

	persisted, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(persisted), "super-secret-123")
	assert.Equal(t, 1, env.V)
	assert.NotEmpty(t, env.Salt)
	assert.NotEmpty(t, env.IV)
	assert.NotEmpty(t, env.Ciphertext)
}

func TestDecryptWithWrongStoreSecretFails(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("secret-a")
	require.NoError(t, err)

	record, err := store.Put(ctx, PutParams{
		Provider:  ProviderIntegration,
		AccountID: "gmail",
		Type:      "oauth",
		Payload:   payload{Secret: "s"},
	})
	require.NoError(t, err)

	other, err := NewMemoryStore("secret-b")
	require.NoError(t, err)

	_, err = other.DecryptPayload(record)
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
}

func TestValidationFailures(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put(ctx, PutParams{AccountID: "gmail", Payload: payload{}})
			require.Error(t, err)
			assert.True(t, api.IsIntegrationError(err))

			_, err = store.Get(ctx, "nope")
			assert.True(t, api.IsNotFound(err))
		})
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	store, err := OpenBolt(path, "store-secret")
	require.NoError(t, err)
	record, err := store.Put(ctx, PutParams{
		ID:        "integration:gmail:oauth",
		Provider:  ProviderIntegration,
		AccountID: "gmail",
		Type:      "oauth",
		Payload:   payload{Secret: "persisted"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenBolt(path, "store-secret")
	require.NoError(t, err)
	defer reopened.Close()

	fetched, err := reopened.Get(ctx, record.ID)
	require.NoError(t, err)
	raw, err := reopened.DecryptPayload(fetched)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "persisted"))
}
