package session

import (
	"context"

	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

// UpdateProfile sends a partial profile update and merges the fields the
// server returns into the current user. Failure never ends the session.
func (s *Store) UpdateProfile(ctx context.Context, fields billingsdk.Fields) Result {
	s.update(func(st *Snapshot) {
		st.Loading = true
		st.Error = ""
	})

	patch, err := s.api.UpdateProfile(ctx, fields)
	if err != nil {
		s.logger.Info("profile update failed", "err", err)
		return s.fail(failureMessage(err, defaultProfileError))
	}

	var mergeErr error
	s.update(func(st *Snapshot) {
		st.Loading = false
		if len(patch) == 0 || string(patch) == "null" {
			return
		}
		merged, err := st.User.Merge(patch)
		if err != nil {
			mergeErr = err
			st.Error = defaultProfileError
			return
		}
		st.User = merged
	})
	if mergeErr != nil {
		s.logger.Warn("failed to merge profile", "err", mergeErr)
		return Result{Error: defaultProfileError}
	}
	return Result{OK: true}
}

// ChangePassword changes the user's password. Failure is reported inline.
func (s *Store) ChangePassword(ctx context.Context, change billingsdk.PasswordChange) Result {
	s.update(func(st *Snapshot) {
		st.Loading = true
		st.Error = ""
	})

	resp, err := s.api.ChangePassword(ctx, change)
	if err != nil {
		s.logger.Info("password change failed", "err", err)
		return s.fail(failureMessage(err, defaultPasswordError))
	}

	s.update(func(st *Snapshot) { st.Loading = false })
	return Result{OK: true, Message: resp.Message}
}

func (s *Store) fail(msg string) Result {
	s.update(func(st *Snapshot) {
		st.Loading = false
		st.Error = msg
	})
	return Result{Error: msg}
}
