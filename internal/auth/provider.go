package auth

import "context"

// Provider is an OAuth 2.0 authorization-code provider whose access token
// is stored on the user's Connection.
type Provider interface {
	Name() string
	// AuthURL returns the provider's consent URL carrying stateToken.
	AuthURL(stateToken string) (string, error)
	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (string, error)
}
