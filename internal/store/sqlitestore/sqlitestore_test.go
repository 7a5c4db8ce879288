package sqlitestore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/seal"
	"github.com/BlackMission/credlink/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	codec, err := seal.NewCodec([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	s, err := Open(filepath.Join(t.TempDir(), "connections.db"), codec)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestPayloadIsEncrypted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", GitHubToken: "gho_plaintext"}))

	var payload []byte
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT payload FROM connections WHERE user_id = 'u1'`).Scan(&payload))
	assert.False(t, bytes.Contains(payload, []byte("gho_plaintext")))
}

func TestReopenKeepsRecords(t *testing.T) {
	codec, _ := seal.NewCodec([]byte("01234567890123456789012345678901"))
	path := filepath.Join(t.TempDir(), "connections.db")
	ctx := context.Background()

	s, err := Open(path, codec)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, &domain.Connection{UserID: "u1", APIKey: "k"}))
	require.NoError(t, s.Close())

	s, err = Open(path, codec)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "k", got.APIKey)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ", nil)
	assert.ErrorIs(t, err, domain.ErrMissingConfig)
}
