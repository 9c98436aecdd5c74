package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIntegrationID(t *testing.T) {
	id, err := NormalizeIntegrationID("  FOO  ")
	require.NoError(t, err)
	assert.Equal(t, "foo", id)

	_, err = NormalizeIntegrationID("   ")
	require.Error(t, err)
	assert.True(t, IsIntegrationError(err))
}

func TestMarshalCredentialRoundTrip(t *testing.T) {
	creds := []Credential{
		&OAuthCredential{
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresAt:    time.Now().Add(time.Hour).Format(time.RFC3339),
			Scopes:       []string{"read", "write"},
			TokenType:    "Bearer",
		},
		&APIKeyCredential{Key: "k-123", Label: "work"},
		&LocalPathCredential{Path: "/home/user/notes", Validated: true},
	}

	for _, cred := range creds {
		raw, err := MarshalCredential(cred)
		require.NoError(t, err)

		restored, err := UnmarshalCredential(raw)
		require.NoError(t, err)
		assert.Equal(t, cred, restored)
	}
}

func TestUnmarshalCredentialRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalCredential([]byte(`{"type":"ssh_key","data":{}}`))
	require.Error(t, err)

	_, err = UnmarshalCredential([]byte(`not json`))
	require.Error(t, err)
}

func TestMarshalNilCredential(t *testing.T) {
	_, err := MarshalCredential(nil)
	require.Error(t, err)
}

func TestClassifyCredential(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cred Credential
		want CredentialStatus
	}{
		{"nil is missing", nil, CredentialMissing},
		{
			"oauth valid",
			&OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(time.Hour).Format(time.RFC3339)},
			CredentialValid,
		},
		{
			"oauth expired strictly before now",
			&OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(-time.Second).Format(time.RFC3339)},
			CredentialExpired,
		},
		{
			"oauth expiring exactly now is expired",
			&OAuthCredential{AccessToken: "at", ExpiresAt: now.Format(time.RFC3339)},
			CredentialExpired,
		},
		{
			"oauth malformed expiry",
			&OAuthCredential{AccessToken: "at", ExpiresAt: "yesterday"},
			CredentialError,
		},
		{"api key valid", &APIKeyCredential{Key: "k"}, CredentialValid},
		{"api key blank", &APIKeyCredential{Key: "   "}, CredentialError},
		{"local path validated", &LocalPathCredential{Path: "/p", Validated: true}, CredentialValid},
		{"local path unvalidated", &LocalPathCredential{Path: "/p", Validated: false}, CredentialError},
		{"local path empty", &LocalPathCredential{Path: "", Validated: true}, CredentialError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCredential(tc.cred, now))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &OAuthCredential{AccessToken: "at", Scopes: []string{"a", "b"}}
	clone := orig.Clone().(*OAuthCredential)

	clone.Scopes[0] = "mutated"
	clone.AccessToken = "changed"

	assert.Equal(t, "a", orig.Scopes[0])
	assert.Equal(t, "at", orig.AccessToken)
}
