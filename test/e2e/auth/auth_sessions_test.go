package auth_test

import (
	"testing"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestOnlyOneSession verifies that a new login revokes older sessions once
// ENB_ONLY_ONE_SESSION is enabled.
func TestOnlyOneSession(t *testing.T) {
	client := setupAuthContainer(t)
	admin := bootstrapAdmin(t, client)
	createUser(t, admin, "solo@example.com", "Solo1234!")
	ctx := t.Context()

	first := mustLogin(t, client, "solo@example.com", "Solo1234!")
	second := mustLogin(t, client, "solo@example.com", "Solo1234!")

	sessions, err := second.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NoError(t, admin.PutSetting(ctx, "ENB_ONLY_ONE_SESSION", true))
	third := mustLogin(t, client, "solo@example.com", "Solo1234!")

	for _, old := range []*authsdk.Session{first, second} {
		_, err := old.ListSessions(ctx, "")
		require.ErrorIs(t, err, authsdk.ErrInvalidToken)
	}

	sessions, err = third.ListSessions(ctx, "")
	require.NoError(t, err)
	var active int
	for _, s := range sessions {
		if s.RevokedAt == nil {
			active++
			require.True(t, s.Current)
		}
	}
	require.Equal(t, 1, active)
}

// TestLogoutAll verifies every session of the caller is revoked.
func TestLogoutAll(t *testing.T) {
	client := setupAuthContainer(t)
	admin := bootstrapAdmin(t, client)
	createUser(t, admin, "many@example.com", "Many1234!")
	ctx := t.Context()

	a := mustLogin(t, client, "many@example.com", "Many1234!")
	b := mustLogin(t, client, "many@example.com", "Many1234!")

	require.NoError(t, a.LogoutAll(ctx))

	_, err := b.ListSessions(ctx, "")
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)
}
