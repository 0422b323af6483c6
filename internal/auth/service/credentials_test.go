package service_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLoginWithoutMFA(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.createUser(t, "alice@example.com", "correct-horse")

	t.Run("correct password completes", func(t *testing.T) {
		res := h.login(t, "alice@example.com", "correct-horse")
		require.Equal(t, authsdk.OutcomeCompleted, res.Outcome)
		require.NotNil(t, res.Session)
		require.Empty(t, res.MFAToken)
		require.Equal(t, []string{jwtx.AMRPassword}, res.Session.Session.AMR)

		p, err := h.sessions.Authenticate(ctx, res.Session.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, p.UserID)
		require.Equal(t, res.Session.Session.ID, p.SessionID)
	})

	t.Run("wrong password creates no session", func(t *testing.T) {
		before := len(h.activeSessions(t, u.ID))

		_, err := h.logins.Login(ctx, service.Credentials{Identifier: "alice@example.com", Password: "nope"}, device)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
		require.Len(t, h.activeSessions(t, u.ID), before)
	})

	t.Run("unknown user looks like a wrong password", func(t *testing.T) {
		_, err := h.logins.Login(ctx, service.Credentials{Identifier: "mallory", Password: "x"}, device)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("every attempt is audited once", func(t *testing.T) {
		logins := h.audit.byType(domain.AuditLogin)
		require.Len(t, logins, 3)
		require.Equal(t, "completed", logins[0].Payload["outcome"])
		require.Equal(t, "bad_password", logins[1].Payload["reason"])
		require.Equal(t, "unknown_user", logins[2].Payload["reason"])
		require.Equal(t, device.IP, logins[0].IP)
	})
}

func TestLoginWithMFAAlwaysChallenges(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "bob@example.com", "hunter2hunter2")
	h.enableMFA(t, u.ID)

	for range 3 {
		res := h.login(t, "bob@example.com", "hunter2hunter2")
		require.Equal(t, authsdk.OutcomeMFAConfirm, res.Outcome)
		require.Nil(t, res.Session)
		require.NotEmpty(t, res.MFAToken)
		require.ElementsMatch(t, []string{authsdk.MethodTOTP, authsdk.MethodBackupCode}, res.Methods)
	}
	require.Empty(t, h.activeSessions(t, u.ID))
}

func TestLoginMFARequiredSetting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createUser(t, "carol@example.com", "password-123")
	require.NoError(t, h.settings.Set(ctx, "", domain.SettingMFARequired, true))

	res := h.login(t, "carol@example.com", "password-123")
	require.Equal(t, authsdk.OutcomeMFASetup, res.Outcome)
	require.NotEmpty(t, res.SetupToken)
	require.Nil(t, res.Session)
}

func TestSecurityMonitor(t *testing.T) {
	ctx := context.Background()

	t.Run("step-up after repeated failures", func(t *testing.T) {
		h := newHarness(t)
		h.monitor.StepUpAfter = 2
		h.createUser(t, "dave@example.com", "password-123")

		for range 2 {
			_, err := h.logins.Login(ctx, service.Credentials{Identifier: "dave@example.com", Password: "bad"}, device)
			require.ErrorIs(t, err, service.ErrInvalidCredentials)
		}

		res := h.login(t, "dave@example.com", "password-123")
		require.Equal(t, authsdk.OutcomeMFASetup, res.Outcome)

		// The successful login cleared the counter.
		res = h.login(t, "dave@example.com", "password-123")
		require.Equal(t, authsdk.OutcomeCompleted, res.Outcome)
	})

	t.Run("block", func(t *testing.T) {
		h := newHarness(t)
		h.monitor.BlockAfter = 1
		h.createUser(t, "erin@example.com", "password-123")

		_, err := h.logins.Login(ctx, service.Credentials{Identifier: "erin@example.com", Password: "bad"}, device)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)

		_, err = h.logins.Login(ctx, service.Credentials{Identifier: "erin@example.com", Password: "password-123"}, device)
		require.ErrorIs(t, err, service.ErrSuspiciousLoginBlocked)

		e, ok := service.AsError(err)
		require.True(t, ok)
		require.Equal(t, authsdk.KindPolicy, e.Kind)
	})

	t.Run("monitor errors are not treated as allow", func(t *testing.T) {
		h := newHarness(t)
		h.logins.Monitor = failingMonitor{}
		u := h.createUser(t, "frank@example.com", "password-123")

		_, err := h.logins.Login(ctx, service.Credentials{Identifier: "frank@example.com", Password: "password-123"}, device)
		require.Error(t, err)
		_, isDomain := service.AsError(err)
		require.False(t, isDomain)
		require.Empty(t, h.activeSessions(t, u.ID))
	})

	t.Run("static monitor", func(t *testing.T) {
		h := newHarness(t)
		h.logins.Monitor = service.StaticMonitor{Action: service.ActionStepUp}
		h.createUser(t, "gina@example.com", "password-123")

		res := h.login(t, "gina@example.com", "password-123")
		require.Equal(t, authsdk.OutcomeMFASetup, res.Outcome)
	})
}

type failingMonitor struct{}

func (failingMonitor) Evaluate(context.Context, service.LoginAttempt) (service.Action, error) {
	return "", context.DeadlineExceeded
}
