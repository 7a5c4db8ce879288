// Package session authenticates requests coming from monday.com.
//
// monday.com signs a short JWT with the app's signing secret and sends it in
// the Authorization header, or as the token query parameter when it opens
// an authorization URL in the browser.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BlackMission/credlink/internal/domain"
)

// ID accepts both JSON strings and numbers; monday.com sends numeric ids.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Claims is the payload of a monday.com session token.
type Claims struct {
	UserID          ID     `json:"userId"`
	AccountID       ID     `json:"accountId"`
	BackToURL       string `json:"backToUrl,omitempty"`
	ShortLivedToken string `json:"shortLivedToken,omitempty"`
	jwt.RegisteredClaims
}

// Session is the authenticated caller.
type Session struct {
	UserID          string
	AccountID       string
	BackToURL       string
	ShortLivedToken string
	// Token is the raw session token, kept so pages can post it back.
	Token string
}

// Verifier checks session tokens signed with HS256.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify returns domain.ErrUnauthenticated for any token that is missing,
// forged, expired or lacks a user id.
func (v *Verifier) Verify(raw string) (*Session, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing session token", domain.ErrUnauthenticated)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user id", domain.ErrUnauthenticated)
	}

	return &Session{
		UserID:          string(claims.UserID),
		AccountID:       string(claims.AccountID),
		BackToURL:       claims.BackToURL,
		ShortLivedToken: claims.ShortLivedToken,
		Token:           raw,
	}, nil
}

// TokenFromRequest reads the session token from the Authorization header
// (with or without a Bearer prefix) or the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return h
	}
	return r.URL.Query().Get("token")
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		return nil, errors.New("no session in context")
	}
	return s, nil
}
