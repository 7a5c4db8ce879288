// Package sqlitestore keeps sealed Connection records in a SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/seal"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	user_id    TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const upsertQuery = `
INSERT INTO connections (user_id, payload, updated_at) VALUES (?1, ?2, ?3)
ON CONFLICT (user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at;
`

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements store.Store over SQLite.
//
// The pool is limited to one connection, which serializes every
// transaction and makes Update atomic within the process.
type Store struct {
	db    *sql.DB
	codec *seal.Codec
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, codec *seal.Codec) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", domain.ErrMissingConfig)
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &Store{db: db, codec: codec, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM connections WHERE user_id = ?1`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select connection: %w", err)
	}
	return s.codec.Open(userID, payload)
}

func (s *Store) Set(ctx context.Context, conn *domain.Connection) error {
	return s.put(ctx, s.db, conn)
}

func (s *Store) put(ctx context.Context, exec execContexter, conn *domain.Connection) error {
	sealed, err := s.codec.Seal(conn)
	if err != nil {
		return err
	}
	if _, err := exec.ExecContext(ctx, upsertQuery, conn.UserID, sealed, s.now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE user_id = ?1`, userID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, userID string, fn store.UpdateFunc) (*domain.Connection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := &domain.Connection{UserID: userID}
	var payload []byte
	err = tx.QueryRowContext(ctx, `SELECT payload FROM connections WHERE user_id = ?1`, userID).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("select connection: %w", err)
	default:
		if current, err = s.codec.Open(userID, payload); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE user_id = ?1`, userID); err != nil {
			return nil, fmt.Errorf("delete connection: %w", err)
		}
	} else {
		next.UserID = userID
		if err := s.put(ctx, tx, next); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
