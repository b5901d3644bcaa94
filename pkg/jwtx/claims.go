// Package jwtx reads access tokens on the client side. Signatures are never
// checked here: the backend is the only party that can verify them, the
// client only needs the timing claims to decide when a token is stale.
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoExpiry  = errors.New("jwtx: token has no exp claim")
)

// Claims are the access-token claims issued by the billing backend
// (simplejwt layout: user_id plus the registered timing claims).
type Claims struct {
	jwt.RegisteredClaims

	UserID    any    `json:"user_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// Inspect decodes a token without verifying its signature.
func Inspect(raw string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}

// ExpiresAt returns the exp claim of raw.
func ExpiresAt(raw string) (time.Time, error) {
	c, err := Inspect(raw)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return c.ExpiresAt.Time, nil
}

// Expired reports whether the token expires within leeway of now. Tokens
// that can't be read are treated as not expired so the server gets the
// final say.
func Expired(raw string, now time.Time, leeway time.Duration) bool {
	exp, err := ExpiresAt(raw)
	if err != nil {
		return false
	}
	return !now.Add(leeway).Before(exp)
}
