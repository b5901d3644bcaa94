package session

import (
	"context"
	"time"

	"github.com/aussiebroadwan/invoicer/pkg/jwtx"
)

// Initialize reconciles a persisted token with the live session without
// blocking: when an access token was persisted it is installed as the bearer
// header and the user is fetched in the background. The returned channel is
// closed once that work is done, immediately when there is none.
func (s *Store) Initialize(ctx context.Context) <-chan struct{} {
	access := s.Snapshot().AccessToken
	if access == "" {
		done := make(chan struct{})
		close(done)
		return done
	}

	s.api.SetBearerToken(access)
	return s.goBackground(ctx, func(ctx context.Context) {
		_ = s.FetchUser(ctx)
	})
}

// Sync reconciles the in-memory session with persisted storage after
// another process changed it. A vanished access token ends the session
// locally without a backend call; a new one is adopted and its user
// fetched.
func (s *Store) Sync(ctx context.Context) error {
	s.commitMu.Lock()
	fetch, ended, err := s.syncLocked(ctx)
	s.commitMu.Unlock()

	switch {
	case err != nil:
		return err
	case ended:
		s.navigateToLogin()
	case fetch:
		return s.FetchUser(ctx)
	}
	return nil
}

// syncLocked applies persisted tokens to memory. It reports whether the
// user must be fetched and whether the session ended.
func (s *Store) syncLocked(ctx context.Context) (fetch, ended bool, err error) {
	persisted, err := s.tokens.Load(ctx)
	if err != nil {
		return false, false, err
	}

	cur := s.Snapshot()
	switch {
	case persisted.Access == cur.AccessToken && persisted.Refresh == cur.RefreshToken:
		return false, false, nil

	case persisted.Access == "":
		if cur.AccessToken == "" && cur.RefreshToken == "" {
			return false, false, nil
		}
		s.logger.Info("session ended elsewhere", "event", EventSync)
		s.observe(EventSync)
		s.clearLocked(ctx)
		return false, true, nil
	}

	s.logger.Info("session changed elsewhere", "event", EventSync)
	s.observe(EventSync)

	s.api.SetBearerToken(persisted.Access)
	s.update(func(st *Snapshot) {
		if st.AccessToken != persisted.Access {
			st.User = nil
		}
		st.AccessToken = persisted.Access
		st.RefreshToken = persisted.Refresh
	})

	return persisted.Access != cur.AccessToken || cur.User == nil, false, nil
}

// WatchStorage calls Sync whenever persisted storage changes, until ctx is
// done or the store is closed. It reports false when the storage driver
// cannot watch.
func (s *Store) WatchStorage(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	ok, err := s.tokens.Watch(ctx, func() {
		if err := s.Sync(ctx); err != nil {
			s.logger.Warn("failed to sync session", "event", EventSync, "err", err)
		}
	})
	if !ok || err != nil {
		stop()
		cancel()
	}
	return ok, err
}

// TokenExpiry reads the exp claim of the current access token. The token is
// not verified.
func (s *Store) TokenExpiry() (time.Time, bool) {
	access := s.Snapshot().AccessToken
	if access == "" {
		return time.Time{}, false
	}
	exp, err := jwtx.ExpiresAt(access)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}
