package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/invoicer/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func mint(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unused"))
	require.NoError(t, err)
	return raw
}

func TestInspect(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	raw := mint(t, jwt.MapClaims{
		"exp":        exp.Unix(),
		"user_id":    42,
		"token_type": "access",
	})

	c, err := jwtx.Inspect(raw)
	require.NoError(t, err)
	require.Equal(t, "access", c.TokenType)
	require.EqualValues(t, 42, c.UserID)
	require.True(t, exp.Equal(c.ExpiresAt.Time))
}

func TestInspectMalformed(t *testing.T) {
	t.Parallel()

	_, err := jwtx.Inspect("not.a.jwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestExpiresAt(t *testing.T) {
	t.Parallel()

	t.Run("missing exp", func(t *testing.T) {
		_, err := jwtx.ExpiresAt(mint(t, jwt.MapClaims{"user_id": 1}))
		require.ErrorIs(t, err, jwtx.ErrNoExpiry)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := jwtx.ExpiresAt("opaque-access-token")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	live := mint(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	dead := mint(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	soon := mint(t, jwt.MapClaims{"exp": now.Add(10 * time.Second).Unix()})

	require.False(t, jwtx.Expired(live, now, 0))
	require.True(t, jwtx.Expired(dead, now, 0))
	require.True(t, jwtx.Expired(soon, now, 30*time.Second))
	require.False(t, jwtx.Expired("opaque", now, 0))
}
