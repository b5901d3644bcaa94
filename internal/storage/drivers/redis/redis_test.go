package redis_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/redis"
	"github.com/aussiebroadwan/invoicer/internal/storage/storagetest"
	"github.com/aussiebroadwan/invoicer/pkg/slogx"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.KV {
		_, rdb := newTestRedis(t)
		return redis.NewStore(rdb, "", slogx.Discard())
	})
}

func TestStoreKeysArePrefixed(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	s := redis.NewStore(rdb, "acme:", slogx.Discard())

	require.NoError(t, s.Put(context.Background(), map[string]string{storage.KeyAccessToken: "a"}))

	v, err := mr.Get("acme:token")
	require.NoError(t, err)
	require.Equal(t, "a", v)
}

func TestStoreWatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr, rdb := newTestRedis(t)
	watched := redis.NewStore(rdb, "", slogx.Discard())

	var changes atomic.Int32
	require.NoError(t, watched.Watch(ctx, func() { changes.Add(1) }))

	// Another process with its own connection.
	other := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	writer := redis.NewStore(other, "", slogx.Discard())

	require.NoError(t, writer.Put(context.Background(), map[string]string{"token": "t"}))
	require.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Delete(context.Background(), "token"))
	require.Eventually(t, func() bool { return changes.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestDial(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	s, err := redis.Dial(context.Background(), mr.Addr(), "", slogx.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = redis.Dial(context.Background(), "127.0.0.1:1", "", slogx.Discard())
	require.Error(t, err)
}
