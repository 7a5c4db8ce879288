// Package store defines the encrypted key-value abstraction that maps a
// user ID to its Connection record.
package store

import (
	"context"

	"github.com/BlackMission/credlink/internal/domain"
)

// UpdateFunc receives the current record (an empty one carrying only the
// user ID when absent) and returns the record to write. Returning nil
// deletes the record. Returning an error aborts without writing.
type UpdateFunc func(current *domain.Connection) (*domain.Connection, error)

// Store persists Connection records. All operations are atomic per key.
type Store interface {
	// Get returns domain.ErrNotFound when no record exists.
	Get(ctx context.Context, userID string) (*domain.Connection, error)
	Set(ctx context.Context, conn *domain.Connection) error
	Delete(ctx context.Context, userID string) error
	// Update performs a read-modify-write that no concurrent Update or Set
	// on the same key can interleave with.
	Update(ctx context.Context, userID string, fn UpdateFunc) (*domain.Connection, error)
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
