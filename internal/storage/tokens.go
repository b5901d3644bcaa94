package storage

import (
	"context"
	"errors"
	"fmt"
)

// Keys under which the session tokens are persisted.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
)

// Tokens is the persisted half of a session. Empty means absent.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenStore reads and writes the session tokens over a KV.
type TokenStore struct {
	kv KV
}

func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// Load returns the persisted tokens. Missing keys yield empty fields.
func (s *TokenStore) Load(ctx context.Context) (Tokens, error) {
	access, err := s.get(ctx, KeyAccessToken)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.get(ctx, KeyRefreshToken)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

func (s *TokenStore) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	return v, nil
}

// Save writes both tokens in one operation.
func (s *TokenStore) Save(ctx context.Context, t Tokens) error {
	return s.kv.Put(ctx, map[string]string{
		KeyAccessToken:  t.Access,
		KeyRefreshToken: t.Refresh,
	})
}

// SaveAccess replaces only the access token.
func (s *TokenStore) SaveAccess(ctx context.Context, access string) error {
	return s.kv.Put(ctx, map[string]string{KeyAccessToken: access})
}

// Clear deletes both tokens in one operation.
func (s *TokenStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken)
}

// Watch forwards to the underlying driver when it supports change
// notification and reports whether it does.
func (s *TokenStore) Watch(ctx context.Context, fn func()) (bool, error) {
	w, ok := s.kv.(Watcher)
	if !ok {
		return false, nil
	}
	return true, w.Watch(ctx, fn)
}
