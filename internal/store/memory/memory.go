// Package memory is a process-local Store for development and tests.
// Records are kept as copies; nothing is encrypted.
package memory

import (
	"context"
	"sync"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	conns map[string]domain.Connection
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{conns: make(map[string]domain.Connection)}
}

func (s *Store) Get(_ context.Context, userID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conns[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *Store) Set(_ context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[conn.UserID] = *conn
	return nil
}

func (s *Store) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, userID)
	return nil
}

func (s *Store) Update(_ context.Context, userID string, fn store.UpdateFunc) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := domain.Connection{UserID: userID}
	if c, ok := s.conns[userID]; ok {
		current = c
	}

	next, err := fn(&current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(s.conns, userID)
		return nil, nil
	}
	next.UserID = userID
	s.conns[userID] = *next
	out := *next
	return &out, nil
}

func (s *Store) Ping(context.Context) error { return nil }
