// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
)

// Run exercises s against the store contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		want := &domain.Connection{UserID: "u1", APIKey: "k", MondayToken: "m"}
		require.NoError(t, s.Set(ctx, want))

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "k"}))
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", GitHubToken: "g"}))

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, &domain.Connection{UserID: "u1", GitHubToken: "g"}, got)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "k"}))
		require.NoError(t, s.Delete(ctx, "u1"))

		_, err := s.Get(ctx, "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "u1"), "deleting a missing record succeeds")
	})

	t.Run("users are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "one"}))
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u2", APIKey: "two"}))
		require.NoError(t, s.Delete(ctx, "u1"))

		got, err := s.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "two", got.APIKey)
	})

	t.Run("update creates", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Update(ctx, "u1", func(c *domain.Connection) (*domain.Connection, error) {
			assert.Equal(t, &domain.Connection{UserID: "u1"}, c)
			next := c.Merge(domain.PatchField(domain.FieldAPIKey, "k"))
			return &next, nil
		})
		require.NoError(t, err)
		assert.Equal(t, &domain.Connection{UserID: "u1", APIKey: "k"}, got)

		stored, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, got, stored)
	})

	t.Run("update sees existing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", GitHubToken: "g"}))

		got, err := s.Update(ctx, "u1", func(c *domain.Connection) (*domain.Connection, error) {
			next := c.Merge(domain.PatchField(domain.FieldMondayToken, "m"))
			return &next, nil
		})
		require.NoError(t, err)
		assert.Equal(t, &domain.Connection{UserID: "u1", GitHubToken: "g", MondayToken: "m"}, got)
	})

	t.Run("update nil deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "k"}))

		got, err := s.Update(ctx, "u1", func(*domain.Connection) (*domain.Connection, error) { return nil, nil })
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = s.Get(ctx, "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update error aborts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "k"}))
		boom := errors.New("boom")

		_, err := s.Update(ctx, "u1", func(c *domain.Connection) (*domain.Connection, error) {
			return &domain.Connection{UserID: "u1"}, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "k", got.APIKey)
	})

	t.Run("concurrent updates keep both fields", func(t *testing.T) {
		s := newStore(t)
		const users = 8

		var wg sync.WaitGroup
		errs := make(chan error, users*2)
		for i := 0; i < users; i++ {
			userID := fmt.Sprintf("u%d", i)
			for _, f := range []domain.Field{domain.FieldGitHubToken, domain.FieldMondayToken} {
				wg.Add(1)
				go func(f domain.Field) {
					defer wg.Done()
					_, err := s.Update(ctx, userID, func(c *domain.Connection) (*domain.Connection, error) {
						next := c.Merge(domain.PatchField(f, string(f)))
						return &next, nil
					})
					errs <- err
				}(f)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := 0; i < users; i++ {
			got, err := s.Get(ctx, fmt.Sprintf("u%d", i))
			require.NoError(t, err)
			assert.Equal(t, string(domain.FieldGitHubToken), got.GitHubToken)
			assert.Equal(t, string(domain.FieldMondayToken), got.MondayToken)
		}
	})
}
