package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// Login methods, as recorded in audit entries and metrics. Provider logins
// use the provider name.
const (
	methodPassword = "password"
	methodMFAReset = "mfa_reset"
)

// PasswordHasher checks passwords against stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
	// VerifyDummy burns the same time as a real Verify.
	VerifyDummy(password string)
}

type Credentials struct {
	Identifier string // email or username
	Password   string
}

// LoginResult carries exactly one branch, named by Outcome.
type LoginResult struct {
	Outcome string

	Session *domain.IssuedSession // completed

	MFAToken string // mfa-confirm
	Methods  []string

	SetupToken string // mfa-setup
}

// CredentialService verifies a primary factor and decides the next step of
// the login.
type CredentialService struct {
	Store       store.Store
	Hasher      PasswordHasher
	Monitor     SecurityMonitor
	Sessions    *SessionService
	Challenges  *ChallengeService
	Enrollments *Enrollments
	Auditor     Auditor
	Metrics     *telemetry.Metrics
}

// Login checks a password and continues with CompleteLogin.
func (s *CredentialService) Login(ctx context.Context, c Credentials, device domain.Device) (LoginResult, error) {
	ctx = WithDevice(ctx, device)
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByIdentifier(ctx, c.Identifier)
	if errors.Is(err, store.ErrNotFound) {
		s.Hasher.VerifyDummy(c.Password)
		s.loginFailed(ctx, "", methodPassword, reasonUnknownUser)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}

	if user.PasswordHash == "" {
		s.Hasher.VerifyDummy(c.Password)
		s.badPassword(ctx, user, device)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := s.Hasher.Verify(c.Password, user.PasswordHash); err != nil {
		s.badPassword(ctx, user, device)
		return LoginResult{}, ErrInvalidCredentials
	}

	l.Debug("password verified", slog.String("user_id", user.ID))
	return s.CompleteLogin(ctx, user, methodPassword, []string{jwtx.AMRPassword}, device)
}

// CompleteLogin runs the post-primary-factor steps shared by every login
// method: security check, then challenge, setup or session.
func (s *CredentialService) CompleteLogin(
	ctx context.Context,
	user domain.User,
	method string,
	amr []string,
	device domain.Device,
) (LoginResult, error) {
	ctx = WithDevice(ctx, device)
	attempt := LoginAttempt{UserID: user.ID, Method: method, IP: device.IP, UserAgent: device.UserAgent}

	action, err := s.evaluate(ctx, attempt)
	if err != nil {
		return LoginResult{}, err
	}
	if action == ActionBlock {
		slogx.FromContext(ctx).Warn("login blocked", slog.String("user_id", user.ID), slog.String("method", method))
		s.loginFailed(ctx, user.ID, method, reasonSuspicious)
		return LoginResult{}, ErrSuspiciousLoginBlocked
	}
	if r, ok := s.Monitor.(FailureRecorder); ok {
		if err := r.RecordSuccess(ctx, attempt); err != nil {
			slogx.FromContext(ctx).Error("failed to reset login failures", slog.Any("error", err))
		}
	}

	if user.HasMFA() {
		ch, err := s.Challenges.Begin(ctx, user, method, amr, device, false)
		if err != nil {
			return LoginResult{}, err
		}
		s.loginStep(ctx, user.ID, "", method, authsdk.OutcomeMFAConfirm)
		return LoginResult{
			Outcome:  authsdk.OutcomeMFAConfirm,
			MFAToken: ch.MFAToken,
			Methods:  []string{authsdk.MethodTOTP, authsdk.MethodBackupCode},
		}, nil
	}

	required, err := s.Store.Settings().GetBool(ctx, domain.SettingMFARequired)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to read MFA policy: %w", err)
	}
	if required || action == ActionStepUp {
		token, err := s.Enrollments.Grant(ctx, user.ID, method, amr, device)
		if err != nil {
			return LoginResult{}, err
		}
		s.loginStep(ctx, user.ID, "", method, authsdk.OutcomeMFASetup)
		return LoginResult{Outcome: authsdk.OutcomeMFASetup, SetupToken: token}, nil
	}

	issued, err := s.Sessions.Issue(ctx, user, device, amr)
	if err != nil {
		return LoginResult{}, err
	}
	s.loginStep(ctx, user.ID, issued.Session.ID, method, authsdk.OutcomeCompleted)
	return LoginResult{Outcome: authsdk.OutcomeCompleted, Session: &issued}, nil
}

func (s *CredentialService) evaluate(ctx context.Context, a LoginAttempt) (Action, error) {
	if s.Monitor == nil {
		return ActionAllow, nil
	}
	action, err := s.Monitor.Evaluate(ctx, a)
	if err != nil {
		return "", fmt.Errorf("security monitor: %w", err)
	}
	return action, nil
}

func (s *CredentialService) badPassword(ctx context.Context, user domain.User, device domain.Device) {
	if r, ok := s.Monitor.(FailureRecorder); ok {
		a := LoginAttempt{UserID: user.ID, Method: methodPassword, IP: device.IP, UserAgent: device.UserAgent}
		if err := r.RecordFailure(ctx, a); err != nil {
			slogx.FromContext(ctx).Error("failed to record login failure", slog.Any("error", err))
		}
	}
	s.loginFailed(ctx, user.ID, methodPassword, reasonBadPassword)
}

func (s *CredentialService) loginFailed(ctx context.Context, userID, method, reason string) {
	s.Metrics.Login(method, outcomeFailure)
	record(ctx, s.Auditor, domain.AuditLogin, userID, "", map[string]any{
		"method":  method,
		"outcome": outcomeFailure,
		"reason":  reason,
	})
}

func (s *CredentialService) loginStep(ctx context.Context, userID, sessionID, method, outcome string) {
	s.Metrics.Login(method, outcome)
	record(ctx, s.Auditor, domain.AuditLogin, userID, sessionID, map[string]any{
		"method":  method,
		"outcome": outcome,
	})
}
