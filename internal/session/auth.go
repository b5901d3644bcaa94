package session

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

const (
	defaultLoginError    = "Login failed"
	defaultProfileError  = "Profile update failed"
	defaultPasswordError = "Password change failed"
)

// failureMessage is the server's message for err, or fallback.
func failureMessage(err error, fallback string) string {
	if msg := billingsdk.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}

// Login exchanges credentials for a session. Failure is reported in the
// Result and the error state, never as a Go error.
func (s *Store) Login(ctx context.Context, creds billingsdk.Credentials) Result {
	s.update(func(st *Snapshot) {
		st.Loading = true
		st.Error = ""
	})

	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		msg := failureMessage(err, defaultLoginError)
		s.update(func(st *Snapshot) {
			st.Loading = false
			st.Error = msg
		})
		s.logger.Info("login failed", "event", EventLoginFailed, "err", err)
		s.observe(EventLoginFailed)
		return Result{Error: msg}
	}

	s.commitMu.Lock()
	if err := s.tokens.Save(ctx, storage.Tokens{Access: resp.Access, Refresh: resp.Refresh}); err != nil {
		s.logger.Warn("failed to persist tokens", "event", EventLogin, "err", err)
	}
	s.api.SetBearerToken(resp.Access)
	s.update(func(st *Snapshot) {
		st.AccessToken = resp.Access
		st.RefreshToken = resp.Refresh
		st.User = resp.User
		st.Loading = false
	})
	s.commitMu.Unlock()

	s.logger.Info("logged in", "event", EventLogin, "user_id", userID(resp.User))
	s.observe(EventLogin)
	return Result{OK: true}
}

// Logout ends the session. The backend is told only when a refresh token is
// held, and its failure is logged, not returned. Local state, persisted
// tokens and the bearer header are always cleared and the navigator is sent
// to the login page.
func (s *Store) Logout(ctx context.Context) {
	if refresh := s.Snapshot().RefreshToken; refresh != "" {
		if err := s.api.Logout(ctx, refresh); err != nil {
			s.logger.Warn("logout request failed", "event", EventLogout, "err", err)
		}
	}

	s.clear(ctx)
	s.logger.Info("logged out", "event", EventLogout)
	s.observe(EventLogout)
	s.navigateToLogin()
}

// clear drops the session from memory, storage and the client.
func (s *Store) clear(ctx context.Context) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) {
	s.api.ClearBearerToken()
	s.update(func(st *Snapshot) {
		st.AccessToken = ""
		st.RefreshToken = ""
		st.User = nil
	})

	// Storage must be cleared even when the caller's context is done.
	if err := s.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to clear persisted tokens", "err", err)
	}
}

// RefreshAccessToken trades the refresh token for a new access token and
// returns it. Without a refresh token it fails with ErrNoRefreshToken and
// makes no request. When the backend rejects the refresh the session is
// logged out before the error is returned. Concurrent callers share one
// request.
func (s *Store) RefreshAccessToken(ctx context.Context) (string, error) {
	refresh := s.Snapshot().RefreshToken
	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx, refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) refresh(ctx context.Context, refresh string) (string, error) {
	resp, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		s.observe(EventRefreshFailed)

		// A cancelled caller says nothing about the refresh token.
		if ctx.Err() != nil {
			return "", fmt.Errorf("refresh access token: %w", err)
		}

		s.logger.Warn("refresh rejected, logging out", "event", EventRefreshFailed, "err", err)
		s.Logout(context.WithoutCancel(ctx))
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	s.commitMu.Lock()
	if resp.Refresh != "" {
		err = s.tokens.Save(ctx, storage.Tokens{Access: resp.Access, Refresh: resp.Refresh})
	} else {
		err = s.tokens.SaveAccess(ctx, resp.Access)
	}
	if err != nil {
		s.logger.Warn("failed to persist refreshed token", "event", EventRefresh, "err", err)
	}
	s.api.SetBearerToken(resp.Access)
	s.update(func(st *Snapshot) {
		st.AccessToken = resp.Access
		if resp.Refresh != "" {
			st.RefreshToken = resp.Refresh
		}
	})
	s.commitMu.Unlock()

	s.logger.Debug("access token refreshed", "event", EventRefresh, "rotated", resp.Refresh != "")
	s.observe(EventRefresh)
	return resp.Access, nil
}

// FetchUser loads the current user. It does nothing without an access
// token. If the backend refuses, the session is logged out and the error
// returned.
func (s *Store) FetchUser(ctx context.Context) error {
	if s.Snapshot().AccessToken == "" {
		return nil
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		s.observe(EventFetchFailed)
		if ctx.Err() != nil {
			return fmt.Errorf("fetch user: %w", err)
		}

		s.logger.Error("failed to fetch user", "event", EventFetchFailed, "err", err)
		s.Logout(context.WithoutCancel(ctx))
		return fmt.Errorf("fetch user: %w", err)
	}

	s.update(func(st *Snapshot) { st.User = user })
	s.logger.Debug("user fetched", "event", EventUserFetched, "user_id", user.ID)
	s.observe(EventUserFetched)
	return nil
}

func userID(u *billingsdk.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
