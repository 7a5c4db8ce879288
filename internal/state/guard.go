package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BlackMission/credlink/internal/domain"
)

// Guard records consumed nonces so a state token is honored once.
type Guard interface {
	// Consume marks nonce as used until expiresAt. A nonce that was
	// already consumed returns domain.ErrStateReplayed.
	Consume(ctx context.Context, nonce string, expiresAt time.Time) error
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *MemoryGuard) Consume(_ context.Context, nonce string, expiresAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for n, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, n)
		}
	}

	if _, used := g.seen[nonce]; used {
		return domain.ErrStateReplayed
	}
	g.seen[nonce] = expiresAt
	return nil
}

const guardKeyPrefix = "credlink:state:nonce:"

// RedisGuard shares consumed nonces across instances using SET NX.
type RedisGuard struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewRedisGuard creates a guard backed by rdb.
func NewRedisGuard(rdb redis.UniversalClient) *RedisGuard {
	return &RedisGuard{rdb: rdb, now: time.Now}
}

func (g *RedisGuard) Consume(ctx context.Context, nonce string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(g.now())
	if ttl <= 0 {
		return domain.ErrExpiredState
	}
	ok, err := g.rdb.SetNX(ctx, guardKeyPrefix+nonce, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: recording state nonce: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.ErrStateReplayed
	}
	return nil
}
