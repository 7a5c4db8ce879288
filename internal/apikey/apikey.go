// Package apikey manages the static API-key credential for services that
// do not use OAuth.
package apikey

import (
	"context"
	"fmt"
	"strings"

	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/domain"
)

const (
	mask        = "••••••••"
	revealEach  = 4
	minMaskable = 2*revealEach + 1
)

// Status describes a stored key without exposing it.
type Status struct {
	Connected bool   `json:"connected"`
	MaskedKey string `json:"maskedKey"`
}

type Service struct {
	connections *connection.Service
}

func NewService(connections *connection.Service) *Service {
	return &Service{connections: connections}
}

// Status returns domain.ErrNotFound when the user has no key on record.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	conn, err := s.connections.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conn.APIKey == "" {
		return nil, domain.ErrNotFound
	}
	return &Status{Connected: true, MaskedKey: Mask(conn.APIKey)}, nil
}

// Save stores key for the user, leaving OAuth tokens untouched.
func (s *Service) Save(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: API key is required", domain.ErrValidation)
	}
	_, err := s.connections.Upsert(ctx, userID, domain.PatchField(domain.FieldAPIKey, key))
	return err
}

// Delete drops only the API key. Deleting a key that was never saved succeeds.
func (s *Service) Delete(ctx context.Context, userID string) error {
	_, err := s.connections.RemoveField(ctx, userID, domain.FieldAPIKey)
	return err
}

// Mask shows the first and last four characters around a fixed-width mask.
// Keys too short to keep a hidden middle are shown as the mask alone.
func Mask(key string) string {
	r := []rune(key)
	if len(r) < minMaskable {
		return mask
	}
	return string(r[:revealEach]) + mask + string(r[len(r)-revealEach:])
}
