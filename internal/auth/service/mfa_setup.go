package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// setupState is the pending enrollment behind a setup token. Nothing is
// persisted until the user proves the authenticator works.
type setupState struct {
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id,omitempty"`
	Secret    string        `json:"secret"`
	URL       string        `json:"url"`
	FromLogin bool          `json:"from_login,omitempty"`
	Method    string        `json:"method,omitempty"`
	AMR       []string      `json:"amr,omitempty"`
	Device    domain.Device `json:"device"`
}

// TOTPSecret is the secret revealed to the user during setup.
type TOTPSecret struct {
	Secret string
	URL    string
}

// SetupChallenge is returned when setup starts from a login.
type SetupChallenge struct {
	MFAToken   string
	TOTPSecret string
	OTPAuthURL string
}

// SetupResult is returned by a confirmed setup. MFAToken and LoginToken are
// only set when setup started from a login.
type SetupResult struct {
	MFAToken    string
	LoginToken  string
	BackupCodes []string
}

// SetupService enrolls TOTP: request a secret, reveal it once, confirm it
// with a code.
type SetupService struct {
	Store       store.Store
	Cache       cache.Store
	TOTP        *TOTPEngine
	Vault       *BackupCodeVault
	Sessions    *SessionService
	Challenges  *ChallengeService
	Enrollments *Enrollments
	Auditor     Auditor
	Metrics     *telemetry.Metrics

	TTL time.Duration
}

// RequestSetup starts enrollment for a signed-in user. The session that
// asked is revoked once setup is confirmed.
func (s *SetupService) RequestSetup(ctx context.Context, userID, sessionID string) (string, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.HasMFA() {
		return "", ErrMFAHasBeenSetup
	}

	token, _, err := s.start(ctx, user, setupState{SessionID: sessionID, Device: DeviceFrom(ctx)})
	if err != nil {
		return "", err
	}
	s.Metrics.MFAStep("setup_request", "ok")
	return token, nil
}

// TOTPSecret reveals the secret of a pending setup, once per token.
func (s *SetupService) TOTPSecret(ctx context.Context, userID, token string) (TOTPSecret, error) {
	fp := cryptox.FingerprintToken(token)

	var st setupState
	if err := s.load(ctx, fp, &st); err != nil {
		return TOTPSecret{}, err
	}
	if st.UserID != userID {
		return TOTPSecret{}, ErrSessionExpired
	}
	if err := s.reveal(ctx, fp); err != nil {
		return TOTPSecret{}, err
	}
	return TOTPSecret{Secret: st.Secret, URL: st.URL}, nil
}

// RequestFromLogin exchanges an enrollment grant from an mfa-setup login
// for a pending setup, and reveals its secret.
func (s *SetupService) RequestFromLogin(ctx context.Context, setupToken string) (SetupChallenge, error) {
	g, err := s.Enrollments.take(ctx, setupToken)
	if err != nil {
		return SetupChallenge{}, err
	}

	user, err := s.user(ctx, g.UserID)
	if err != nil {
		return SetupChallenge{}, err
	}
	if user.HasMFA() {
		return SetupChallenge{}, ErrMFAHasBeenSetup
	}

	token, st, err := s.start(ctx, user, setupState{
		FromLogin: true,
		Method:    g.Method,
		AMR:       g.AMR,
		Device:    g.Device,
	})
	if err != nil {
		return SetupChallenge{}, err
	}
	if err := s.reveal(ctx, cryptox.FingerprintToken(token)); err != nil {
		return SetupChallenge{}, err
	}

	s.Metrics.MFAStep("setup_request", "ok")
	return SetupChallenge{MFAToken: token, TOTPSecret: st.Secret, OTPAuthURL: st.URL}, nil
}

// ConfirmSetup enables MFA once otp matches the pending secret. A wrong
// code keeps the token so the user can retry until it expires.
func (s *SetupService) ConfirmSetup(ctx context.Context, token, otp string) (SetupResult, error) {
	l := slogx.FromContext(ctx)
	fp := cryptox.FingerprintToken(token)

	var st setupState
	if err := s.load(ctx, fp, &st); err != nil {
		return SetupResult{}, err
	}
	if !s.TOTP.Validate(otp, st.Secret) {
		s.Metrics.MFAStep("setup_confirm", outcomeFailure)
		return SetupResult{}, ErrInvalidOTP
	}

	if _, err := s.Cache.Take(ctx, setupKey(fp)); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return SetupResult{}, ErrSessionExpired
		}
		return SetupResult{}, fmt.Errorf("failed to consume setup token: %w", err)
	}

	codes, hashes, err := s.Vault.Generate(st.UserID)
	if err != nil {
		return SetupResult{}, err
	}

	var (
		user    domain.User
		revoked []string
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.Users().EnableMFA(ctx, st.UserID, st.Secret, time.Now().UTC())
		switch {
		case errors.Is(err, store.ErrConflict):
			return ErrMFAHasBeenSetup
		case errors.Is(err, store.ErrNotFound):
			return ErrSessionExpired
		case err != nil:
			return fmt.Errorf("failed to enable MFA: %w", err)
		}

		if err := tx.BackupCodes().ReplaceBackupCodes(ctx, st.UserID, hashes); err != nil {
			return fmt.Errorf("failed to store backup codes: %w", err)
		}

		if st.SessionID != "" {
			if revoked, err = s.Sessions.RevokeTx(ctx, tx, st.UserID, st.SessionID); err != nil {
				return err
			}
		}

		user, err = tx.Users().GetUserByID(ctx, st.UserID)
		return err
	})
	if err != nil {
		s.Metrics.MFAStep("setup_confirm", outcomeFailure)
		return SetupResult{}, err
	}

	_ = s.Cache.Delete(ctx, setupShownKey(fp))
	s.Sessions.Revoked(ctx, st.UserID, revokeMFAEnabled, revoked)
	record(ctx, s.Auditor, domain.AuditMFAEnabled, st.UserID, st.SessionID, map[string]any{
		"from_login": st.FromLogin,
	})
	s.Metrics.MFAStep("setup_confirm", "ok")
	l.Info("MFA enabled", slog.String("user_id", st.UserID))

	res := SetupResult{BackupCodes: codes}
	if st.FromLogin {
		ch, err := s.Challenges.Begin(ctx, user, st.Method, st.AMR, st.Device, true)
		if err != nil {
			return SetupResult{}, err
		}
		res.MFAToken = ch.MFAToken
		res.LoginToken = ch.LoginToken
	}
	return res, nil
}

// RegenerateBackupCodes replaces every backup code after checking otp.
func (s *SetupService) RegenerateBackupCodes(ctx context.Context, userID, otp string) ([]string, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasMFA() {
		return nil, ErrMFANotEnabled
	}

	n, err := s.Challenges.reserveProof(ctx, userID, "regenerate_codes")
	if err != nil {
		return nil, err
	}
	if !s.TOTP.Validate(otp, *user.MFASecret) {
		s.Metrics.MFAStep("regenerate_codes", outcomeFailure)
		return nil, s.Challenges.exhausted(n, ErrInvalidOTP)
	}
	s.Challenges.proofSucceeded(ctx, userID)

	codes, hashes, err := s.Vault.Generate(userID)
	if err != nil {
		return nil, err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.BackupCodes().ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace backup codes: %w", err)
	}

	record(ctx, s.Auditor, domain.AuditBackupCodesRenewed, userID, "", map[string]any{"count": len(codes)})
	s.Metrics.MFAStep("regenerate_codes", "ok")
	return codes, nil
}

// start generates a secret and caches the pending setup.
func (s *SetupService) start(ctx context.Context, user domain.User, st setupState) (string, setupState, error) {
	key, err := s.TOTP.Generate(user.AccountName())
	if err != nil {
		return "", setupState{}, err
	}
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", setupState{}, err
	}

	st.UserID = user.ID
	st.Secret = key.Secret
	st.URL = key.URL
	if err := cache.SetJSON(ctx, s.Cache, setupKey(cryptox.FingerprintToken(token)), st, s.ttl()); err != nil {
		return "", setupState{}, fmt.Errorf("failed to store setup state: %w", err)
	}

	record(ctx, s.Auditor, domain.AuditMFASetupRequested, user.ID, st.SessionID, map[string]any{
		"from_login": st.FromLogin,
	})
	return token, st, nil
}

func (s *SetupService) load(ctx context.Context, fp string, st *setupState) error {
	err := cache.GetJSON(ctx, s.Cache, setupKey(fp), st)
	if errors.Is(err, cache.ErrNotFound) {
		return ErrSessionExpired
	}
	if err != nil {
		return fmt.Errorf("failed to load setup state: %w", err)
	}
	return nil
}

// reveal claims the one-time right to show the secret of fp.
func (s *SetupService) reveal(ctx context.Context, fp string) error {
	ok, err := s.Cache.SetNX(ctx, setupShownKey(fp), []byte("1"), s.ttl())
	if err != nil {
		return fmt.Errorf("failed to mark secret shown: %w", err)
	}
	if !ok {
		return ErrSessionExpired
	}
	return nil
}

func (s *SetupService) user(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrSessionExpired
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (s *SetupService) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultSetupTTL
	}
	return s.TTL
}
