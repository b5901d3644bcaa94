// Package memory is a process-local storage driver, used by tests and by
// INVOICER_STORAGE=memory.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/invoicer/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[int]func()
	nextID   int
}

func NewStore() *Store {
	return &Store{
		data:     make(map[string]string),
		watchers: make(map[int]func()),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	for k, v := range entries {
		s.data[k] = v
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.data, k)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) Close() error { return nil }

// Watch registers fn until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()
	return nil
}

// notify runs watchers on their own goroutines, like the other drivers, so
// a watcher may write to the store.
func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		go fn()
	}
}

var (
	_ storage.KV      = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)
