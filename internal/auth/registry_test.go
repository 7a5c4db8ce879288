package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
)

type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) AuthURL(stateToken string) (string, error) {
	return "https://example.com/auth", nil
}
func (m *mockProvider) Exchange(ctx context.Context, code string) (string, error) {
	return "", nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{name: domain.ProviderGitHub}))

	got, err := r.Get(domain.ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGitHub, got.Name())
}

func TestUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("unknown")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestDuplicateProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{name: domain.ProviderMonday}))

	err := r.Register(&mockProvider{name: domain.ProviderMonday})
	assert.ErrorIs(t, err, domain.ErrDuplicateProvider)
}

func TestNamesKeepOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockProvider{name: domain.ProviderMonday})
	r.Register(&mockProvider{name: domain.ProviderGitHub})

	names := r.Names()
	assert.Equal(t, []string{domain.ProviderMonday, domain.ProviderGitHub}, names)

	names[0] = "mutated"
	assert.Equal(t, domain.ProviderMonday, r.Names()[0])
}

func TestRequire(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockProvider{name: domain.ProviderGitHub})

	assert.NoError(t, r.Require(domain.ProviderGitHub))
	assert.ErrorIs(t, r.Require(domain.ProviderGitHub, domain.ProviderMonday), domain.ErrProviderNotFound)
}
