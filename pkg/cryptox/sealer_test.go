package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/invoicer/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("test-master-secret"), nil)
	require.NoError(t, err)

	plaintext := []byte(`{"token":"access","refreshToken":"refresh"}`)

	sealed, err := s.Seal(plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "access")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("test-master-secret"), []byte("salt"))
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("one"), nil)
	require.NoError(t, err)
	other, err := cryptox.NewSealer([]byte("two"), nil)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("secret"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := other.Open(sealed)
		require.Error(t, err)
	})

	t.Run("flipped bit", func(t *testing.T) {
		broken := append([]byte(nil), sealed...)
		broken[len(broken)-1] ^= 0x01
		_, err := s.Open(broken)
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte{1, 2, 3})
		require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
	})
}

func TestNewSealerRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewSealer(nil, nil)
	require.Error(t, err)
}
