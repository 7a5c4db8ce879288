// Package monday configures the monday.com OAuth provider.
package monday

import (
	"golang.org/x/oauth2"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/providers/oauthcode"
)

// Endpoint is monday.com's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://auth.monday.com/oauth2/authorize",
	TokenURL:  "https://auth.monday.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Config holds monday.com app OAuth settings. Scopes default to the
// ones configured on the app when empty.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	CallbackURL  string
}

// New creates the monday.com provider.
func New(cfg Config) *oauthcode.Provider {
	return oauthcode.New(oauthcode.Config{
		Name:         domain.ProviderMonday,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		CallbackURL:  cfg.CallbackURL,
		Endpoint:     Endpoint,
	})
}
