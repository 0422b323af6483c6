package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "tidy@example.com", "password-123")
	now := time.Now().UTC()

	newSession := func(created, expires time.Time, revoked *time.Time) string {
		sess := domain.Session{
			ID:        idx.NewAt(created).String(),
			UserID:    u.ID,
			AMR:       []string{"pwd"},
			CreatedAt: created,
			ExpiresAt: expires,
			RevokedAt: revoked,
		}
		require.NoError(t, h.store.Sessions().CreateSession(ctx, sess))
		return sess.ID
	}

	longAgo := now.Add(-30 * 24 * time.Hour)
	recently := now.Add(-time.Hour)

	expired := newSession(longAgo, longAgo.Add(time.Hour), nil)
	revokedLongAgo := newSession(longAgo, now.Add(time.Hour), &longAgo)
	revokedRecently := newSession(recently, now.Add(time.Hour), &recently)
	live := newSession(now, now.Add(time.Hour), nil)

	oldEntry := domain.AuditEntry{ID: idx.NewAt(longAgo).String(), Type: domain.AuditLogin, UserID: u.ID, CreatedAt: longAgo}
	newEntry := domain.AuditEntry{ID: idx.New().String(), Type: domain.AuditLogin, UserID: u.ID, CreatedAt: now}
	require.NoError(t, h.store.Audit().AppendAudit(ctx, oldEntry))
	require.NoError(t, h.store.Audit().AppendAudit(ctx, newEntry))

	hk := service.NewHousekeepingService(h.store, slogx.Discard(), time.Hour)
	hk.AuditRetention = 24 * time.Hour
	hk.Cleanup(ctx)

	for _, id := range []string{expired, revokedLongAgo} {
		_, err := h.store.Sessions().GetSession(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound, "session %s should be deleted", id)
	}

	// Revoked sessions stay listable until the retention passes.
	for _, id := range []string{revokedRecently, live} {
		_, err := h.store.Sessions().GetSession(ctx, id)
		require.NoError(t, err)
	}

	entries, err := h.store.Audit().ListAudit(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, newEntry.ID, entries[0].ID)
}

func TestHousekeepingKeepsAuditWithoutRetention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "keep@example.com", "password-123")

	old := time.Now().UTC().Add(-365 * 24 * time.Hour)
	require.NoError(t, h.store.Audit().AppendAudit(ctx, domain.AuditEntry{
		ID:        idx.NewAt(old).String(),
		Type:      domain.AuditLogin,
		UserID:    u.ID,
		CreatedAt: old,
	}))

	hk := service.NewHousekeepingService(h.store, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Start()
	hk.Stop()

	entries, err := h.store.Audit().ListAudit(ctx, u.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
