// Package file stores the key-value map as one JSON document on disk,
// optionally sealed, and watches it for writes made by other processes.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aussiebroadwan/invoicer/internal/storage"
)

// DefaultDebounce coalesces the burst of events a single rename produces.
const DefaultDebounce = 100 * time.Millisecond

// Sealer encrypts the document at rest. *cryptox.Sealer implements it.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type Options struct {
	// Sealer is optional; without one the document is plain JSON.
	Sealer Sealer

	Debounce time.Duration
	Logger   *slog.Logger
}

type Store struct {
	path string
	opts Options

	mu sync.Mutex
}

// NewStore opens (or prepares) the document at path. The parent directory
// is created with owner-only permissions.
func NewStore(path string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{path: abs, opts: opts}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range entries {
		data[k] = v
	}
	return s.write(data)
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	changed := false
	for _, k := range keys {
		if _, ok := data[k]; ok {
			delete(data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(data)
}

func (s *Store) Close() error { return nil }

func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if s.opts.Sealer != nil {
		raw, err = s.opts.Sealer.Open(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
		}
	}

	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return data, nil
}

// write replaces the document through a rename so readers never see a
// partial file.
func (s *Store) write(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if s.opts.Sealer != nil {
		raw, err = s.opts.Sealer.Seal(raw)
		if err != nil {
			return fmt.Errorf("failed to seal document: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Watch calls fn, debounced, whenever the document changes on disk.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: the document is replaced by rename, which drops
	// a watch held on the file itself.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	go s.watchLoop(ctx, w, fn)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, fn func()) {
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path || ev.Op&relevant == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(s.opts.Debounce, fn)
			} else {
				timer.Reset(s.opts.Debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.opts.Logger.Warn("storage watch error", "path", s.path, "err", err)
		}
	}
}

var (
	_ storage.KV      = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)
