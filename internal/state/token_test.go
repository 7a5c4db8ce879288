package state

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
)

var testKey = []byte("test-signing-key-1234567890abcdef")

func newTestService() *Service {
	return NewService(testKey, 0)
}

func TestRoundTrip(t *testing.T) {
	svc := newTestService()

	payloads := []domain.StatePayload{
		{UserID: "42", BackToURL: "https://acme.monday.com/boards/1", Provider: "monday"},
		{UserID: "user with spaces", BackToURL: "https://example.com/?a=1&b=two#frag", Provider: "github"},
		{UserID: "7", BackToURL: "https://example.com", Provider: "github", Extra: map[string]string{"hop": "2"}},
	}
	for _, p := range payloads {
		token, err := svc.Issue(p)
		require.NoError(t, err)

		got, err := svc.Verify(token)
		require.NoError(t, err)

		assert.Equal(t, p.UserID, got.UserID)
		assert.Equal(t, p.BackToURL, got.BackToURL)
		assert.Equal(t, p.Provider, got.Provider)
		assert.Equal(t, p.Extra, got.Extra)
		assert.NotEmpty(t, got.Nonce)
	}
}

func TestTokenIsURLSafe(t *testing.T) {
	svc := newTestService()
	token, err := svc.Issue(domain.StatePayload{UserID: "1", BackToURL: "https://example.com/?x=y&z=/"})
	require.NoError(t, err)
	assert.Equal(t, token, url.QueryEscape(token))
}

func TestTamperedPayload(t *testing.T) {
	svc := newTestService()

	token, err := svc.Issue(domain.StatePayload{UserID: "victim", BackToURL: "https://example.com"})
	require.NoError(t, err)

	encoded, sig, _ := strings.Cut(token, ".")
	data, _ := base64.RawURLEncoding.DecodeString(encoded)
	modified := strings.Replace(string(data), "victim", "hacker", 1)
	encoded = base64.RawURLEncoding.EncodeToString([]byte(modified))

	_, err = svc.Verify(encoded + "." + sig)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSingleCharacterTamper(t *testing.T) {
	svc := newTestService()

	token, err := svc.Issue(domain.StatePayload{UserID: "u1", BackToURL: "https://example.com"})
	require.NoError(t, err)

	for i := range token {
		b := []byte(token)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := svc.Verify(string(b))
		assert.True(t, domain.IsStateError(err), "position %d accepted", i)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.SetNow(func() time.Time { return now })

	token, err := svc.Issue(domain.StatePayload{UserID: "u1"})
	require.NoError(t, err)

	svc.SetNow(func() time.Time { return now.Add(DefaultTTL + time.Second) })

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, domain.ErrExpiredState)
}

func TestCustomTTL(t *testing.T) {
	svc := NewService(testKey, time.Minute)
	now := time.Now()
	svc.SetNow(func() time.Time { return now })

	token, err := svc.Issue(domain.StatePayload{UserID: "u1"})
	require.NoError(t, err)

	svc.SetNow(func() time.Time { return now.Add(2 * time.Minute) })
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, domain.ErrExpiredState)
}

func TestWrongKey(t *testing.T) {
	svc1 := NewService([]byte("key-one-1234567890abcdef12345678"), 0)
	svc2 := NewService([]byte("key-two-1234567890abcdef12345678"), 0)

	token, err := svc1.Issue(domain.StatePayload{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc2.Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMalformedInput(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no dot", "nodothere"},
		{"just dots", "..."},
		{"empty signature", "abc."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.True(t, domain.IsStateError(err), "got %v", err)
		})
	}
}

func TestSignedGarbageIsMalformed(t *testing.T) {
	svc := newTestService()
	encoded := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	_, err := svc.Verify(encoded + "." + svc.sign(encoded))
	assert.ErrorIs(t, err, domain.ErrMalformedState)
}

func TestNonceUniqueness(t *testing.T) {
	svc := newTestService()
	payload := domain.StatePayload{UserID: "u1"}

	token1, _ := svc.Issue(payload)
	token2, _ := svc.Issue(payload)
	assert.NotEqual(t, token1, token2)

	p1, _ := svc.Verify(token1)
	p2, _ := svc.Verify(token2)
	assert.NotEqual(t, p1.Nonce, p2.Nonce)
}

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	require.NoError(t, g.Consume(ctx, "n1", exp))
	assert.ErrorIs(t, g.Consume(ctx, "n1", exp), domain.ErrStateReplayed)
	assert.NoError(t, g.Consume(ctx, "n2", exp))
}

func TestMemoryGuard_SweepsExpired(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()
	now := time.Now()
	g.now = func() time.Time { return now }

	require.NoError(t, g.Consume(ctx, "n1", now.Add(time.Second)))

	g.now = func() time.Time { return now.Add(time.Minute) }
	require.NoError(t, g.Consume(ctx, "n2", now.Add(2*time.Minute)))
	assert.Len(t, g.seen, 1)
}

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	g := NewRedisGuard(rdb)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	require.NoError(t, g.Consume(ctx, "n1", exp))
	assert.ErrorIs(t, g.Consume(ctx, "n1", exp), domain.ErrStateReplayed)
	assert.True(t, mr.Exists(guardKeyPrefix+"n1"))

	err := g.Consume(ctx, "n3", time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, domain.ErrExpiredState)
}

func TestRedisGuard_StoreFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	err := NewRedisGuard(rdb).Consume(context.Background(), "n1", time.Now().Add(time.Minute))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
