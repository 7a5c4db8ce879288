// Package github configures the GitHub OAuth App provider.
package github

import (
	"golang.org/x/oauth2/github"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/providers/oauthcode"
)

var defaultScopes = []string{"repo"}

// Config holds GitHub OAuth App settings.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	CallbackURL  string
}

// New creates the GitHub provider.
func New(cfg Config) *oauthcode.Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return oauthcode.New(oauthcode.Config{
		Name:         domain.ProviderGitHub,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       scopes,
		CallbackURL:  cfg.CallbackURL,
		Endpoint:     github.Endpoint,
	})
}
