package vault

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reins/internal/api"
	"reins/internal/credstore"
	"reins/internal/crypto"
)

func newEncrypted(t *testing.T) (*EncryptedVault, *credstore.MemoryStore) {
	t.Helper()
	store, err := credstore.NewMemoryStore("outer-secret")
	require.NoError(t, err)
	keyEnc, err := crypto.NewKeyEncryption("master-secret")
	require.NoError(t, err)
	return NewEncrypted(store, keyEnc), store
}

// bothVaults runs a subtest against the encrypted and in-memory variants.
func bothVaults(t *testing.T, fn func(t *testing.T, v Vault)) {
	t.Helper()
	encrypted, _ := newEncrypted(t)
	t.Run("encrypted", func(t *testing.T) { fn(t, encrypted) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func oauthCred(expiresAt time.Time) *api.OAuthCredential {
	return &api.OAuthCredential{
		AccessToken:  "super-secret-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    expiresAt.Format(time.RFC3339),
		Scopes:       []string{"mail.read"},
		TokenType:    "Bearer",
	}
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		cred := oauthCred(time.Now().Add(time.Hour))
		require.NoError(t, v.Store(ctx, "gmail", cred))

		got, err := v.Retrieve(ctx, "gmail")
		require.NoError(t, err)
		assert.Equal(t, cred, got)
	})
}

func TestRetrievePriorityOrder(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		require.NoError(t, v.Store(ctx, "mixed", &api.LocalPathCredential{Path: "/data", Validated: true}))
		require.NoError(t, v.Store(ctx, "mixed", &api.APIKeyCredential{Key: "k"}))

		got, err := v.Retrieve(ctx, "mixed")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialAPIKey, got.CredentialType())

		// Adding oauth makes it win.
		require.NoError(t, v.Store(ctx, "mixed", oauthCred(time.Now().Add(time.Hour))))
		got, err = v.Retrieve(ctx, "mixed")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialOAuth, got.CredentialType())

		// Type-addressed retrieval still reaches the others.
		lp, err := v.RetrieveType(ctx, "mixed", api.CredentialLocalPath)
		require.NoError(t, err)
		assert.Equal(t, api.CredentialLocalPath, lp.CredentialType())
	})
}

func TestIDNormalization(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		require.NoError(t, v.Store(ctx, "  FOO  ", &api.APIKeyCredential{Key: "k"}))

		got, err := v.Retrieve(ctx, "foo")
		require.NoError(t, err)
		require.NotNil(t, got)

		has, err := v.HasCredentials(ctx, "FOO")
		require.NoError(t, err)
		assert.True(t, has)

		revoked, err := v.Revoke(ctx, " Foo ")
		require.NoError(t, err)
		assert.True(t, revoked)
	})
}

func TestEmptyIDRejectedUniformly(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()

		err := v.Store(ctx, "   ", &api.APIKeyCredential{Key: "k"})
		assert.True(t, api.IsIntegrationError(err))

		_, err = v.Retrieve(ctx, "")
		assert.True(t, api.IsIntegrationError(err))

		_, err = v.Revoke(ctx, "")
		assert.True(t, api.IsIntegrationError(err))

		_, err = v.HasCredentials(ctx, "")
		assert.True(t, api.IsIntegrationError(err))

		_, err = v.GetStatus(ctx, "")
		assert.True(t, api.IsIntegrationError(err))
	})
}

func TestRevokeIsolation(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		require.NoError(t, v.Store(ctx, "a", &api.APIKeyCredential{Key: "ka"}))
		require.NoError(t, v.Store(ctx, "b", &api.APIKeyCredential{Key: "kb"}))

		revoked, err := v.Revoke(ctx, "a")
		require.NoError(t, err)
		assert.True(t, revoked)

		got, err := v.Retrieve(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got)

		// b is untouched.
		got, err = v.Retrieve(ctx, "b")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "kb", got.(*api.APIKeyCredential).Key)

		// Revoking again reports nothing deleted.
		revoked, err = v.Revoke(ctx, "a")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestStoreAfterRevokeRoundTrips(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		require.NoError(t, v.Store(ctx, "gmail", &api.APIKeyCredential{Key: "first"}))

		revoked, err := v.Revoke(ctx, "gmail")
		require.NoError(t, err)
		assert.True(t, revoked)

		// Re-authentication after a disable stores under the same
		// deterministic id; the earlier revoke must not shadow it.
		require.NoError(t, v.Store(ctx, "gmail", &api.APIKeyCredential{Key: "second"}))

		got, err := v.Retrieve(ctx, "gmail")
		require.NoError(t, err)
		require.NotNil(t, got, "freshly stored credential must be retrievable after a prior revoke")
		assert.Equal(t, "second", got.(*api.APIKeyCredential).Key)

		has, err := v.HasCredentials(ctx, "gmail")
		require.NoError(t, err)
		assert.True(t, has)
	})
}

func TestRetrievedCopyIsIsolated(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()
		require.NoError(t, v.Store(ctx, "gmail", oauthCred(time.Now().Add(time.Hour))))

		first, err := v.Retrieve(ctx, "gmail")
		require.NoError(t, err)
		first.(*api.OAuthCredential).AccessToken = "mutated"
		first.(*api.OAuthCredential).Scopes[0] = "mutated-scope"

		second, err := v.Retrieve(ctx, "gmail")
		require.NoError(t, err)
		assert.Equal(t, "super-secret-123", second.(*api.OAuthCredential).AccessToken)
		assert.Equal(t, "mail.read", second.(*api.OAuthCredential).Scopes[0])
	})
}

func TestGetStatus(t *testing.T) {
	bothVaults(t, func(t *testing.T, v Vault) {
		ctx := context.Background()

		status, err := v.GetStatus(ctx, "nothing")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialMissing, status)

		require.NoError(t, v.Store(ctx, "fresh", oauthCred(time.Now().Add(time.Hour))))
		status, err = v.GetStatus(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialValid, status)

		require.NoError(t, v.Store(ctx, "stale", oauthCred(time.Now().Add(-time.Hour))))
		status, err = v.GetStatus(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialExpired, status)

		require.NoError(t, v.Store(ctx, "blank", &api.APIKeyCredential{Key: "  "}))
		status, err = v.GetStatus(ctx, "blank")
		require.NoError(t, err)
		assert.Equal(t, api.CredentialError, status)
	})
}

func TestEncryptedAtRestNoSecretSubstring(t *testing.T) {
	ctx := context.Background()
	v, store := newEncrypted(t)

	require.NoError(t, v.Store(ctx, "gmail", oauthCred(time.Now().Add(time.Hour))))

	env, ok := store.RawEnvelope("integration:gmail:oauth")
	require.True(t, ok)

	persisted, err := json.Marshal(env)
	require.NoError(t, err)
	for _, secret := range []string{"super-secret-123", "refresh-456", "mail.read"} {
		assert.NotContains(t, string(persisted), secret)
	}
	assert.Equal(t, 1, env.V)
	assert.NotEmpty(t, env.Salt)
	assert.NotEmpty(t, env.IV)
	assert.NotEmpty(t, env.Ciphertext)
}

func TestDecryptionWithWrongMasterSecretFails(t *testing.T) {
	ctx := context.Background()
	store, err := credstore.NewMemoryStore("outer-secret")
	require.NoError(t, err)

	keyEnc, err := crypto.NewKeyEncryption("master-secret")
	require.NoError(t, err)
	v := NewEncrypted(store, keyEnc)
	require.NoError(t, v.Store(ctx, "gmail", oauthCred(time.Now().Add(time.Hour))))

	wrongKey, err := crypto.NewKeyEncryption("other-secret")
	require.NoError(t, err)
	wrongVault := NewEncrypted(store, wrongKey)

	_, err = wrongVault.Retrieve(ctx, "gmail")
	require.Error(t, err)
	assert.True(t, api.IsIntegrationError(err))
	assert.True(t, api.IsAuthError(err)) // cause preserved through the wrap
}
