package refresh

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"reins/internal/api"
)

// OAuth2Plan builds a refresh callback for providers that follow the
// standard RFC 6749 refresh-token grant. Integration authors fill in the
// endpoint and client settings; the plan handles the token exchange and
// the mapping back to the credential shape.
type OAuth2Plan struct {
	// Config carries the client id/secret, endpoint, and scopes.
	Config oauth2.Config
}

// Run performs one refresh exchange. It satisfies the Callback signature
// through the Callback method.
func (p *OAuth2Plan) Run(ctx context.Context, rc *CallbackContext) (*api.OAuthCredential, error) {
	source := p.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: rc.RefreshToken})

	token, err := source.Token()
	if err != nil {
		return nil, api.NewAuthIntegrationError("oauth token exchange failed", err)
	}

	cred := &api.OAuthCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scopes:       p.Config.Scopes,
	}
	if !token.Expiry.IsZero() {
		cred.ExpiresAt = token.Expiry.UTC().Format(time.RFC3339)
	}
	return cred, nil
}

// Callback adapts the plan to the manager's callback type.
func (p *OAuth2Plan) Callback() Callback {
	return p.Run
}
