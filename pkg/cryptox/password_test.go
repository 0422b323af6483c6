package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher("test-pepper")
	require.NoError(t, err)
	return h
}

func TestHash_PHCFormat(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("password123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 6)
	require.Contains(t, parts[3], "m=")
	require.NotEmpty(t, parts[4])
	require.NotEmpty(t, parts[5])
}

func TestHash_UniqueSalts(t *testing.T) {
	h := newTestHasher(t)

	hash1, err := h.Hash("samepassword")
	require.NoError(t, err)
	hash2, err := h.Hash("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2)
	require.NoError(t, h.Verify("samepassword", hash1))
	require.NoError(t, h.Verify("samepassword", hash2))
}

func TestVerify(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("correct-password")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		require.NoError(t, h.Verify("correct-password", hash))
	})

	t.Run("wrong passwords", func(t *testing.T) {
		for _, wrong := range []string{"wrong", "Correct-Password", "correct-password ", ""} {
			require.ErrorIs(t, h.Verify(wrong, hash), ErrPasswordMismatch)
		}
	})

	t.Run("different pepper", func(t *testing.T) {
		other, err := NewHasher("another-pepper")
		require.NoError(t, err)
		require.ErrorIs(t, other.Verify("correct-password", hash), ErrPasswordMismatch)
	})

	t.Run("invalid hash formats", func(t *testing.T) {
		for _, bad := range []string{
			"",
			"$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
			"$argon2id$v=19$m=19456",
			"$argon2id$v=19$invalid$c2FsdA$aGFzaA",
			"$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA",
			"$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		} {
			require.ErrorIs(t, h.Verify("x", bad), ErrInvalidHash, bad)
		}
	})
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
