package state

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BlackMission/credlink/internal/domain"
)

const (
	DefaultTTL = 10 * time.Minute
	nonceBytes = 16
)

// Service issues and verifies HMAC-signed state tokens. Tokens carry
// identity and the return destination across provider redirects, so
// nothing about an in-flight authorization is kept server-side.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewService creates a state token service with the given HMAC signing key.
// A non-positive ttl selects DefaultTTL.
func NewService(key []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
}

// Issue creates a signed, URL-safe token containing the given payload.
func (s *Service) Issue(payload domain.StatePayload) (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	payload.Nonce = hex.EncodeToString(nonce)
	payload.ExpiresAt = s.now().Add(s.ttl).UTC()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling state payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + s.sign(encoded), nil
}

// Verify checks the signature before looking at the payload, then the expiry.
func (s *Service) Verify(token string) (*domain.StatePayload, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return nil, domain.ErrMalformedState
	}

	if !hmac.Equal([]byte(sig), []byte(s.sign(encoded))) {
		return nil, domain.ErrInvalidState
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.ErrMalformedState
	}

	var payload domain.StatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.ErrMalformedState
	}
	if payload.UserID == "" || payload.Nonce == "" {
		return nil, domain.ErrMalformedState
	}

	if s.now().After(payload.ExpiresAt) {
		return nil, domain.ErrExpiredState
	}

	return &payload, nil
}

// SetNow overrides the time function (for testing).
func (s *Service) SetNow(fn func() time.Time) {
	s.now = fn
}

func (s *Service) sign(data string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
