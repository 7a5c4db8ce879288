// Package oauthcode implements auth.Provider for any OAuth 2.0 provider
// that supports the authorization-code grant.
package oauthcode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/BlackMission/credlink/internal/domain"
)

const exchangeTimeout = 10 * time.Second

// Config holds the settings for one provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	Scopes       []string
	CallbackURL  string // {base_url}/oauth/callback/{name}
	Endpoint     oauth2.Endpoint
	// AuthParams are appended to the consent URL.
	AuthParams map[string]string
}

// Provider drives the authorization-code grant through golang.org/x/oauth2.
type Provider struct {
	name       string
	oauth      *oauth2.Config
	authOpts   []oauth2.AuthCodeOption
	httpClient *http.Client
}

func New(cfg Config) *Provider {
	opts := make([]oauth2.AuthCodeOption, 0, len(cfg.AuthParams))
	for k, v := range cfg.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return &Provider{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		authOpts:   opts,
		httpClient: &http.Client{Timeout: exchangeTimeout},
	}
}

// WithHTTPClient sets the client used for token exchange.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.httpClient = c
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AuthURL(stateToken string) (string, error) {
	return p.oauth.AuthCodeURL(stateToken, p.authOpts...), nil
}

func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", domain.ErrValidation)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrUpstreamExchange, p.name, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: %s: empty access token", domain.ErrUpstreamExchange, p.name)
	}
	return tok.AccessToken, nil
}
