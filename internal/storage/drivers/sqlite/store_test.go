package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/sqlite"
	"github.com/aussiebroadwan/invoicer/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.KV {
		return openStore(t, filepath.Join(t.TempDir(), "invoicer.db"))
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "invoicer.db")

	first, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.ApplyMigrations())
	require.NoError(t, first.Put(ctx, map[string]string{storage.KeyRefreshToken: "r1"}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	require.NoError(t, second.Ping(ctx))

	v, err := second.Get(ctx, storage.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "r1", v)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openStore(t, filepath.Join(t.TempDir(), "invoicer.db"))
	require.NoError(t, s.ApplyMigrations())
}
