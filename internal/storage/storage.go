// Package storage persists the session tokens between runs.
//
// Drivers implement KV. Every write and delete covers a set of keys in one
// operation so the access and refresh token can never be observed half
// written.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// KV is a durable string key-value store.
type KV interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put writes all entries atomically.
	Put(ctx context.Context, entries map[string]string) error

	// Delete removes keys atomically. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any underlying resources.
	Close() error
}

// Watcher is implemented by drivers that can report writes made by other
// processes. fn is called after each change until ctx is done; it may be
// called for the process's own writes as well.
type Watcher interface {
	Watch(ctx context.Context, fn func()) error
}
