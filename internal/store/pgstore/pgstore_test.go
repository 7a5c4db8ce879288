package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/store"
	"github.com/BlackMission/credlink/internal/store/seal"
	"github.com/BlackMission/credlink/internal/store/storetest"
)

// Set CREDLINK_TEST_POSTGRES_DSN to run against a real database. Each
// subtest truncates the table.
func TestContract(t *testing.T) {
	dsn := os.Getenv("CREDLINK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CREDLINK_TEST_POSTGRES_DSN not set")
	}
	codec, err := seal.NewCodec([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn, codec)
		require.NoError(t, err)
		t.Cleanup(s.Close)
		_, err = s.pool.Exec(ctx, `TRUNCATE connections`)
		require.NoError(t, err)
		return s
	})
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrMissingConfig)
}
