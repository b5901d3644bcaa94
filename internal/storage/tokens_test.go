package storage_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/memory"
	"github.com/stretchr/testify/require"
)

func TestTokenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty store loads empty tokens", func(t *testing.T) {
		ts := storage.NewTokenStore(memory.NewStore())

		got, err := ts.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, storage.Tokens{}, got)
	})

	t.Run("save, update access, clear", func(t *testing.T) {
		kv := memory.NewStore()
		ts := storage.NewTokenStore(kv)

		require.NoError(t, ts.Save(ctx, storage.Tokens{Access: "a1", Refresh: "r1"}))

		v, err := kv.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		require.Equal(t, "a1", v)
		v, err = kv.Get(ctx, storage.KeyRefreshToken)
		require.NoError(t, err)
		require.Equal(t, "r1", v)

		require.NoError(t, ts.SaveAccess(ctx, "a2"))
		got, err := ts.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, storage.Tokens{Access: "a2", Refresh: "r1"}, got)

		require.NoError(t, ts.Clear(ctx))
		_, err = kv.Get(ctx, storage.KeyAccessToken)
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = kv.Get(ctx, storage.KeyRefreshToken)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("watch is forwarded", func(t *testing.T) {
		ts := storage.NewTokenStore(memory.NewStore())

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var n atomic.Int32
		ok, err := ts.Watch(wctx, func() { n.Add(1) })
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, ts.Save(ctx, storage.Tokens{Access: "a", Refresh: "r"}))
		require.NoError(t, ts.Clear(ctx))
		require.EqualValues(t, 2, n.Load())
	})
}
