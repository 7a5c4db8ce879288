// Package pgstore keeps sealed Connection records in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/seal"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	user_id    TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertQuery = `
INSERT INTO connections (user_id, payload, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

// Store implements store.Store over a pgx connection pool. Update locks
// the row with SELECT ... FOR UPDATE for the duration of the transaction.
type Store struct {
	pool  *pgxpool.Pool
	codec *seal.Codec
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, codec *seal.Codec) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", domain.ErrMissingConfig)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Store{pool: pool, codec: codec}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM connections WHERE user_id = $1`, userID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select connection: %w", err)
	}
	if len(payload) == 0 {
		return nil, domain.ErrNotFound
	}
	return s.codec.Open(userID, payload)
}

func (s *Store) Set(ctx context.Context, conn *domain.Connection) error {
	sealed, err := s.codec.Seal(conn)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertQuery, conn.UserID, sealed); err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, userID string, fn store.UpdateFunc) (*domain.Connection, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Make sure a row exists to lock; an empty payload marks a placeholder.
	if _, err := tx.Exec(ctx,
		`INSERT INTO connections (user_id, payload) VALUES ($1, ''::bytea) ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return nil, fmt.Errorf("reserve connection row: %w", err)
	}

	var payload []byte
	if err := tx.QueryRow(ctx, `SELECT payload FROM connections WHERE user_id = $1 FOR UPDATE`, userID).Scan(&payload); err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}

	current := &domain.Connection{UserID: userID}
	if len(payload) > 0 {
		if current, err = s.codec.Open(userID, payload); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM connections WHERE user_id = $1`, userID); err != nil {
			return nil, fmt.Errorf("delete connection: %w", err)
		}
	} else {
		next.UserID = userID
		sealed, err := s.codec.Seal(next)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, upsertQuery, userID, sealed); err != nil {
			return nil, fmt.Errorf("upsert connection: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
