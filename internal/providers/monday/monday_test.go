package monday

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
)

func TestNew(t *testing.T) {
	p := New(Config{ClientID: "m-id", CallbackURL: "https://link.example.com/oauth/callback/monday"})
	assert.Equal(t, domain.ProviderMonday, p.Name())

	authURL, err := p.AuthURL("st")
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	assert.Equal(t, "auth.monday.com", u.Host)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Empty(t, u.Query().Get("scope"))
}
