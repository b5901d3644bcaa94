package billingsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrIncompleteLogin is returned when a login response lacks a token.
var ErrIncompleteLogin = errors.New("billingsdk: login response missing tokens")

// Login exchanges credentials for an access/refresh token pair and the user.
func (c *SDKClient) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	req, err := NewRequest(http.MethodPost, "/auth/login/", creds)
	if err != nil {
		return nil, err
	}
	req.NoRefresh = true

	var out LoginResponse
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	out.normalize()

	if out.Access == "" || out.Refresh == "" {
		return nil, ErrIncompleteLogin
	}
	return &out, nil
}

// Logout asks the backend to invalidate refreshToken.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	req, err := NewRequest(http.MethodPost, "/auth/logout/", map[string]string{"refresh": refreshToken})
	if err != nil {
		return err
	}
	req.NoRefresh = true

	return c.call(ctx, req, nil)
}

// Refresh exchanges a refresh token for a new access token.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	req, err := NewRequest(http.MethodPost, "/auth/refresh/", map[string]string{"refresh": refreshToken})
	if err != nil {
		return nil, err
	}
	req.NoRefresh = true

	var out RefreshResponse
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Access == "" {
		return nil, errors.New("billingsdk: refresh response missing access token")
	}
	return &out, nil
}

// Me fetches the current user.
func (c *SDKClient) Me(ctx context.Context) (*User, error) {
	req, _ := NewRequest(http.MethodGet, "/auth/me/", nil)

	var out User
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile sends a partial profile update and returns the fields the
// server echoed back, to be merged with User.Merge.
func (c *SDKClient) UpdateProfile(ctx context.Context, fields Fields) (json.RawMessage, error) {
	req, err := NewRequest(http.MethodPatch, "/auth/profile/", fields)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangePassword changes the current user's password.
func (c *SDKClient) ChangePassword(ctx context.Context, change PasswordChange) (*StatusMessage, error) {
	req, err := NewRequest(http.MethodPost, "/auth/change-password/", change)
	if err != nil {
		return nil, err
	}

	var out StatusMessage
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
