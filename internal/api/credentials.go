package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CredentialType tags the shape of a stored credential.
type CredentialType string

const (
	CredentialOAuth     CredentialType = "oauth"
	CredentialAPIKey    CredentialType = "api_key"
	CredentialLocalPath CredentialType = "local_path"
)

// RetrievalOrder is the fixed priority in which the vault searches
// credential types. The ordering is data, not code: callers that need a
// different policy iterate the types themselves.
var RetrievalOrder = []CredentialType{
	CredentialOAuth,
	CredentialAPIKey,
	CredentialLocalPath,
}

// CredentialStatus is the derived (never stored) validity classification.
type CredentialStatus string

const (
	CredentialValid   CredentialStatus = "valid"
	CredentialExpired CredentialStatus = "expired"
	CredentialMissing CredentialStatus = "missing"
	CredentialError   CredentialStatus = "error"
)

// Credential is the tagged sum over the three credential shapes.
type Credential interface {
	CredentialType() CredentialType
	// Clone returns a deep copy so vault-owned values cannot be mutated
	// through retrieved references.
	Clone() Credential
}

// OAuthCredential holds OAuth token material.
type OAuthCredential struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    string   `json:"expires_at"` // ISO-8601 / RFC 3339
	Scopes       []string `json:"scopes,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
}

func (c *OAuthCredential) CredentialType() CredentialType { return CredentialOAuth }

func (c *OAuthCredential) Clone() Credential {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

// ExpiryTime parses the ISO-8601 expiry instant.
func (c *OAuthCredential) ExpiryTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.ExpiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expires_at %q: %w", c.ExpiresAt, err)
	}
	return t, nil
}

// APIKeyCredential holds a static API key.
type APIKeyCredential struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
}

func (c *APIKeyCredential) CredentialType() CredentialType { return CredentialAPIKey }

func (c *APIKeyCredential) Clone() Credential {
	cp := *c
	return &cp
}

// LocalPathCredential points at a local filesystem resource.
type LocalPathCredential struct {
	Path      string `json:"path"`
	Validated bool   `json:"validated"`
}

func (c *LocalPathCredential) CredentialType() CredentialType { return CredentialLocalPath }

func (c *LocalPathCredential) Clone() Credential {
	cp := *c
	return &cp
}

// ClassifyCredential derives the status of a credential at the given
// instant. A nil credential is missing; OAuth credentials are expired
// strictly before now; API keys are valid iff the key trims non-empty;
// local paths are valid iff they were validated.
func ClassifyCredential(cred Credential, now time.Time) CredentialStatus {
	if cred == nil {
		return CredentialMissing
	}
	switch c := cred.(type) {
	case *OAuthCredential:
		expiry, err := c.ExpiryTime()
		if err != nil {
			return CredentialError
		}
		if !expiry.After(now) {
			return CredentialExpired
		}
		return CredentialValid
	case *APIKeyCredential:
		if strings.TrimSpace(c.Key) == "" {
			return CredentialError
		}
		return CredentialValid
	case *LocalPathCredential:
		if c.Path == "" || !c.Validated {
			return CredentialError
		}
		return CredentialValid
	default:
		return CredentialError
	}
}

// credentialEnvelope is the serialized form of a Credential: the type tag
// plus the shape-specific body.
type credentialEnvelope struct {
	Type CredentialType  `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalCredential serializes a credential with its type tag.
func MarshalCredential(cred Credential) ([]byte, error) {
	if cred == nil {
		return nil, NewValidationError("cannot marshal nil credential")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}
	return json.Marshal(credentialEnvelope{Type: cred.CredentialType(), Data: data})
}

// UnmarshalCredential restores a credential from its tagged form.
func UnmarshalCredential(raw []byte) (Credential, error) {
	var env credentialEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed credential envelope: %w", err)
	}

	var cred Credential
	switch env.Type {
	case CredentialOAuth:
		cred = &OAuthCredential{}
	case CredentialAPIKey:
		cred = &APIKeyCredential{}
	case CredentialLocalPath:
		cred = &LocalPathCredential{}
	default:
		return nil, fmt.Errorf("unknown credential type %q", env.Type)
	}

	if err := json.Unmarshal(env.Data, cred); err != nil {
		return nil, fmt.Errorf("malformed %s credential: %w", env.Type, err)
	}
	return cred, nil
}

// NormalizeIntegrationID trims and lowercases an integration id. The empty
// result is rejected uniformly across all credential operations.
func NormalizeIntegrationID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return "", NewValidationError("integration id must not be empty")
	}
	return normalized, nil
}
