// Package connection owns the lifecycle of Connection records: reads,
// field-merging upserts, field-level redaction and full unlink. It is the
// only writer of the store.
package connection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
)

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger.Named("connection")}
}

// GetByUserID returns domain.ErrNotFound when the user has no record.
func (s *Service) GetByUserID(ctx context.Context, userID string) (*domain.Connection, error) {
	conn, err := s.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, s.persistenceError("retrieve connection", userID, err)
	}
	return conn, nil
}

// Upsert merges the fields set in patch over the stored record (an empty
// one when absent) and writes the result back atomically.
func (s *Service) Upsert(ctx context.Context, userID string, patch domain.ConnectionPatch) (*domain.Connection, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	conn, err := s.store.Update(ctx, userID, func(current *domain.Connection) (*domain.Connection, error) {
		next := current.Merge(patch)
		next.UserID = userID
		return &next, nil
	})
	if err != nil {
		return nil, s.persistenceError("upsert connection", userID, err)
	}
	if conn == nil {
		return nil, s.persistenceError("upsert connection", userID, errors.New("store returned no record"))
	}
	return conn, nil
}

// SetToken stores the OAuth token for provider.
func (s *Service) SetToken(ctx context.Context, userID, provider, token string) (*domain.Connection, error) {
	field, ok := domain.TokenField(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	return s.Upsert(ctx, userID, domain.PatchField(field, token))
}

// RemoveField clears one credential and keeps the rest. A record left with
// no credentials is kept; only Delete removes the record. Returns nil, nil
// when the user has no record.
func (s *Service) RemoveField(ctx context.Context, userID string, field domain.Field) (*domain.Connection, error) {
	conn, err := s.store.Update(ctx, userID, func(current *domain.Connection) (*domain.Connection, error) {
		if current.IsEmpty() {
			return nil, errNoRecord
		}
		next := current.Without(field)
		return &next, nil
	})
	if errors.Is(err, errNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, s.persistenceError("remove connection field", userID, err)
	}
	return conn, nil
}

// Delete removes the whole record, used when a user unlinks the account.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return s.persistenceError("delete connection", userID, err)
	}
	return nil
}

var errNoRecord = errors.New("no record")

func (s *Service) persistenceError(op, userID string, err error) error {
	s.logger.Error("failed to "+op,
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
