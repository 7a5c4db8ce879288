// Package redisstore keeps sealed Connection records in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/seal"
)

const (
	keyPrefix         = "credlink:connection:"
	maxUpdateAttempts = 16
)

// Store is a store.Store over a Redis client. Values are sealed with codec.
type Store struct {
	rdb   redis.UniversalClient
	codec *seal.Codec
}

var _ store.Store = (*Store)(nil)

func New(rdb redis.UniversalClient, codec *seal.Codec) *Store {
	return &Store{rdb: rdb, codec: codec}
}

func key(userID string) string { return keyPrefix + userID }

func (s *Store) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	raw, err := s.rdb.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get connection: %w", err)
	}
	return s.codec.Open(userID, raw)
}

func (s *Store) Set(ctx context.Context, conn *domain.Connection) error {
	sealed, err := s.codec.Seal(conn)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key(conn.UserID), sealed, 0).Err(); err != nil {
		return fmt.Errorf("redis set connection: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete connection: %w", err)
	}
	return nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer
// touched the key first, so fn may be invoked more than once.
func (s *Store) Update(ctx context.Context, userID string, fn store.UpdateFunc) (*domain.Connection, error) {
	k := key(userID)
	var result *domain.Connection

	txf := func(tx *redis.Tx) error {
		current := &domain.Connection{UserID: userID}
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get connection: %w", err)
		default:
			if current, err = s.codec.Open(userID, raw); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var sealed []byte
		if next != nil {
			next.UserID = userID
			if sealed, err = s.codec.Seal(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, sealed, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("redis update connection: gave up after %d conflicting attempts", maxUpdateAttempts)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
