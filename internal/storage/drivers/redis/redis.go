// Package redis shares the session between machines through a redis
// server. Writes are announced on a pub/sub channel so other processes can
// resync.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/invoicer/internal/storage"
)

// DefaultPrefix namespaces every key this driver touches.
const DefaultPrefix = "invoicer:"

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewStore wraps rdb. An empty prefix means DefaultPrefix.
func NewStore(rdb goredis.UniversalClient, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, prefix: prefix, logger: logger}
}

// Dial connects to addr and checks the server answers.
func Dial(ctx context.Context, addr, prefix string, logger *slog.Logger) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewStore(rdb, prefix, logger), nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) channel() string { return s.prefix + "changed" }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	pairs := make([]any, 0, len(entries)*2)
	for k, v := range entries {
		pairs = append(pairs, s.key(k), v)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.MSet(ctx, pairs...)
		pipe.Publish(ctx, s.channel(), "put")
		return nil
	})
	return err
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, full...)
		pipe.Publish(ctx, s.channel(), "delete")
		return nil
	})
	return err
}

func (s *Store) Close() error { return s.rdb.Close() }

// Watch subscribes to the change channel. It returns once the subscription
// is confirmed.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	sub := s.rdb.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel(), err)
	}

	go func() {
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					s.logger.Warn("storage watch closed", "channel", s.channel())
					return
				}
				fn()
			}
		}
	}()
	return nil
}

var (
	_ storage.KV      = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)
