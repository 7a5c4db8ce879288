package github

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
)

func TestNew(t *testing.T) {
	p := New(Config{ClientID: "gh-id", CallbackURL: "https://link.example.com/oauth/callback/github"})
	assert.Equal(t, domain.ProviderGitHub, p.Name())

	authURL, err := p.AuthURL("st")
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "/login/oauth/authorize", u.Path)
	assert.Equal(t, "repo", u.Query().Get("scope"))
	assert.Equal(t, "gh-id", u.Query().Get("client_id"))
}

func TestNew_CustomScopes(t *testing.T) {
	p := New(Config{ClientID: "gh-id", Scopes: []string{"read:user", "gist"}})
	authURL, _ := p.AuthURL("st")
	u, _ := url.Parse(authURL)
	assert.Equal(t, "read:user gist", u.Query().Get("scope"))
}
