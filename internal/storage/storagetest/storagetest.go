// Package storagetest holds the behaviour every storage driver must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/stretchr/testify/require"
)

// Run exercises a driver. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) storage.KV) {
	t.Helper()

	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		kv := open(t)

		_, err := kv.Get(ctx, "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put many then get", func(t *testing.T) {
		kv := open(t)

		require.NoError(t, kv.Put(ctx, map[string]string{"a": "1", "b": "2"}))

		v, err := kv.Get(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "1", v)

		v, err = kv.Get(ctx, "b")
		require.NoError(t, err)
		require.Equal(t, "2", v)
	})

	t.Run("put overwrites", func(t *testing.T) {
		kv := open(t)

		require.NoError(t, kv.Put(ctx, map[string]string{"a": "1", "b": "2"}))
		require.NoError(t, kv.Put(ctx, map[string]string{"a": "3"}))

		v, err := kv.Get(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "3", v)

		v, err = kv.Get(ctx, "b")
		require.NoError(t, err)
		require.Equal(t, "2", v)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		kv := open(t)

		require.NoError(t, kv.Put(ctx, map[string]string{"a": ""}))

		v, err := kv.Get(ctx, "a")
		require.NoError(t, err)
		require.Empty(t, v)
	})

	t.Run("delete many ignores missing", func(t *testing.T) {
		kv := open(t)

		require.NoError(t, kv.Put(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))
		require.NoError(t, kv.Delete(ctx, "a", "b", "zzz"))

		_, err := kv.Get(ctx, "a")
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = kv.Get(ctx, "b")
		require.ErrorIs(t, err, storage.ErrNotFound)

		v, err := kv.Get(ctx, "c")
		require.NoError(t, err)
		require.Equal(t, "3", v)

		require.NoError(t, kv.Delete(ctx))
	})

	t.Run("token store round trip", func(t *testing.T) {
		ts := storage.NewTokenStore(open(t))

		require.NoError(t, ts.Save(ctx, storage.Tokens{Access: "acc", Refresh: "ref"}))
		got, err := ts.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, storage.Tokens{Access: "acc", Refresh: "ref"}, got)

		require.NoError(t, ts.Clear(ctx))
		got, err = ts.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, storage.Tokens{}, got)
	})
}
