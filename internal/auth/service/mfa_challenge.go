package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

const (
	defaultChallengeTTL = 5 * time.Minute
	defaultMaxAttempts  = 5
)

// challengeState is the server side of an MFA token.
type challengeState struct {
	UserID         string        `json:"user_id"`
	LoginTokenHash string        `json:"login_token_hash,omitempty"`
	Method         string        `json:"method"`
	AMR            []string      `json:"amr"`
	Device         domain.Device `json:"device"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// Challenge is handed to the client on the mfa-confirm branch.
type Challenge struct {
	MFAToken   string
	LoginToken string // only for challenges started by a confirmed setup
	ExpiresAt  time.Time
}

// MFAProof proves possession of the second factor. Exactly one field is set.
type MFAProof struct {
	OTP        string
	BackupCode string
}

// ChallengeService verifies the second factor of a login and manages MFA
// removal.
type ChallengeService struct {
	Store       store.Store
	Cache       cache.Store
	TOTP        *TOTPEngine
	Vault       *BackupCodeVault
	Sessions    *SessionService
	Enrollments *Enrollments
	Auditor     Auditor
	Metrics     *telemetry.Metrics

	TTL         time.Duration
	MaxAttempts int
}

// Begin starts a challenge for user. Any earlier live challenge of the same
// user stops working.
func (s *ChallengeService) Begin(
	ctx context.Context,
	user domain.User,
	method string,
	amr []string,
	device domain.Device,
	withLoginToken bool,
) (Challenge, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return Challenge{}, err
	}

	ch := Challenge{MFAToken: token, ExpiresAt: time.Now().UTC().Add(s.ttl())}
	st := challengeState{
		UserID:    user.ID,
		Method:    method,
		AMR:       amr,
		Device:    device,
		ExpiresAt: ch.ExpiresAt,
	}
	if withLoginToken {
		if ch.LoginToken, err = cryptox.GenerateToken(cryptox.TokenSize256); err != nil {
			return Challenge{}, err
		}
		st.LoginTokenHash = cryptox.FingerprintToken(ch.LoginToken)
	}

	fp := cryptox.FingerprintToken(token)
	if err := cache.SetJSON(ctx, s.Cache, challengeKey(fp), st, s.ttl()); err != nil {
		return Challenge{}, fmt.Errorf("failed to store challenge: %w", err)
	}

	old, err := s.Cache.Swap(ctx, userChallengeKey(user.ID), []byte(fp), s.ttl())
	switch {
	case errors.Is(err, cache.ErrNotFound):
	case err != nil:
		return Challenge{}, fmt.Errorf("failed to register challenge: %w", err)
	case string(old) != fp:
		s.drop(ctx, string(old))
	}
	return ch, nil
}

// LoginWithOTP completes a challenge with a TOTP code.
func (s *ChallengeService) LoginWithOTP(ctx context.Context, mfaToken, otp string) (domain.IssuedSession, error) {
	fp, st, err := s.load(ctx, mfaToken)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	if st.LoginTokenHash != "" {
		return domain.IssuedSession{}, ErrSessionExpired
	}
	return s.completeOTP(ctx, "otp", fp, st, otp)
}

// ConfirmLogin completes a challenge that was started by a confirmed setup.
// The login token must match the one issued with it.
func (s *ChallengeService) ConfirmLogin(ctx context.Context, mfaToken, loginToken, otp string) (domain.IssuedSession, error) {
	fp, st, err := s.load(ctx, mfaToken)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	if st.LoginTokenHash == "" || !cryptox.EqualTokens(st.LoginTokenHash, cryptox.FingerprintToken(loginToken)) {
		return domain.IssuedSession{}, ErrSessionExpired
	}
	return s.completeOTP(ctx, "confirm_login", fp, st, otp)
}

func (s *ChallengeService) completeOTP(ctx context.Context, step, fp string, st challengeState, otp string) (domain.IssuedSession, error) {
	n, err := s.reserve(ctx, step, fp, st, channelOTP)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	user, err := s.mfaUser(ctx, st.UserID)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	if !s.TOTP.Validate(otp, *user.MFASecret) {
		return domain.IssuedSession{}, s.fail(ctx, step, st, n, ErrInvalidOTP)
	}

	if err := s.take(ctx, fp); err != nil {
		return domain.IssuedSession{}, err
	}

	issued, err := s.Sessions.Issue(ctx, user, st.Device, withAMR(st.AMR, jwtx.AMROTP))
	if err != nil {
		return domain.IssuedSession{}, err
	}
	s.succeeded(ctx, step, fp, st, issued)
	return issued, nil
}

// VerifyBackupCode completes a challenge with a backup code. Consuming the
// code, taking the challenge and issuing the session share one transaction.
func (s *ChallengeService) VerifyBackupCode(ctx context.Context, mfaToken, code string) (domain.IssuedSession, error) {
	const step = "backup_code"

	fp, st, err := s.load(ctx, mfaToken)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	n, err := s.reserve(ctx, step, fp, st, channelBackup)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	user, err := s.mfaUser(ctx, st.UserID)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	var (
		issued  domain.IssuedSession
		revoked []string
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Vault.Consume(ctx, tx, user.ID, code, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.take(ctx, fp); err != nil {
			return err
		}

		var err error
		issued, revoked, err = s.Sessions.IssueTx(ctx, tx, user, st.Device, withAMR(st.AMR, jwtx.AMRBackup))
		return err
	})
	switch {
	case errors.Is(err, ErrInvalidBackupCode), errors.Is(err, ErrBackupCodeAlreadyUsed):
		return domain.IssuedSession{}, s.fail(ctx, step, st, n, err)
	case err != nil:
		return domain.IssuedSession{}, err
	}

	s.Sessions.Committed(ctx, user.ID, revoked)
	s.succeeded(ctx, step, fp, st, issued)
	return issued, nil
}

// DisableMFA removes MFA after checking proof. All sessions of the user are
// revoked in the same transaction.
func (s *ChallengeService) DisableMFA(ctx context.Context, userID string, proof MFAProof) error {
	return s.clear(ctx, userID, proof, domain.AuditMFADisabled)
}

// ResetMFA removes MFA like DisableMFA and returns an enrollment grant so
// the user can enroll a new authenticator straight away.
func (s *ChallengeService) ResetMFA(ctx context.Context, userID string, proof MFAProof) (string, error) {
	if err := s.clear(ctx, userID, proof, domain.AuditMFAReset); err != nil {
		return "", err
	}
	return s.Enrollments.Grant(ctx, userID, methodMFAReset, nil, DeviceFrom(ctx))
}

func (s *ChallengeService) clear(ctx context.Context, userID string, proof MFAProof, auditType string) error {
	step := "disable"
	if auditType == domain.AuditMFAReset {
		step = "reset"
	}

	if (proof.OTP == "") == (proof.BackupCode == "") {
		return fmt.Errorf("%w: provide exactly one of otp or backup_code", ErrInvalidRequest)
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.HasMFA() {
		return ErrMFANotEnabled
	}

	n, err := s.reserveProof(ctx, userID, step)
	if err != nil {
		return err
	}
	if proof.OTP != "" && !s.TOTP.Validate(proof.OTP, *user.MFASecret) {
		s.Metrics.MFAStep(step, outcomeFailure)
		return s.exhausted(n, ErrInvalidOTP)
	}

	var revoked []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if proof.BackupCode != "" {
			if err := s.Vault.Consume(ctx, tx, userID, proof.BackupCode, time.Now().UTC()); err != nil {
				return err
			}
		}

		err := tx.Users().DisableMFA(ctx, userID)
		if errors.Is(err, store.ErrConflict) {
			return ErrMFANotEnabled
		}
		if err != nil {
			return fmt.Errorf("failed to disable MFA: %w", err)
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}

		revoked, err = s.Sessions.RevokeTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		s.Metrics.MFAStep(step, outcomeFailure)
		if errors.Is(err, ErrInvalidBackupCode) || errors.Is(err, ErrBackupCodeAlreadyUsed) {
			return s.exhausted(n, err)
		}
		return err
	}

	s.proofSucceeded(ctx, userID)
	s.Sessions.Revoked(ctx, userID, revokeMFADisabled, revoked)
	if raw, err := s.Cache.Take(ctx, userChallengeKey(userID)); err == nil {
		s.drop(ctx, string(raw))
	}

	record(ctx, s.Auditor, auditType, userID, "", map[string]any{"sessions_revoked": len(revoked)})
	s.Metrics.MFAStep(step, "ok")
	slogx.FromContext(ctx).Info("MFA removed", slog.String("user_id", userID), slog.String("type", auditType))
	return nil
}

func (s *ChallengeService) load(ctx context.Context, token string) (string, challengeState, error) {
	fp := cryptox.FingerprintToken(token)

	var st challengeState
	err := cache.GetJSON(ctx, s.Cache, challengeKey(fp), &st)
	if errors.Is(err, cache.ErrNotFound) {
		return "", challengeState{}, ErrSessionExpired
	}
	if err != nil {
		return "", challengeState{}, fmt.Errorf("failed to load challenge: %w", err)
	}
	if !time.Now().Before(st.ExpiresAt) {
		return "", challengeState{}, ErrSessionExpired
	}
	return fp, st, nil
}

// take consumes the challenge. Only one caller can win.
func (s *ChallengeService) take(ctx context.Context, fp string) error {
	_, err := s.Cache.Take(ctx, challengeKey(fp))
	if errors.Is(err, cache.ErrNotFound) {
		return ErrSessionExpired
	}
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	return nil
}

// mfaUser loads the challenged user. MFA removed mid-challenge ends it.
func (s *ChallengeService) mfaUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrSessionExpired
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.HasMFA() {
		return domain.User{}, ErrSessionExpired
	}
	return user, nil
}

// reserve counts an attempt on channel before the answer is checked, so
// concurrent guesses cannot all slip under the limit. It returns the attempt
// number.
func (s *ChallengeService) reserve(ctx context.Context, step, fp string, st challengeState, channel string) (int64, error) {
	n, err := s.Cache.Incr(ctx, attemptsKey(fp, channel), max(time.Until(st.ExpiresAt), time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to count MFA attempt: %w", err)
	}
	if n > int64(s.maxAttempts()) {
		s.failed(ctx, step, st, reasonTooManyAttempts)
		return n, ErrTooManyAttempts
	}
	return n, nil
}

// fail reports a wrong answer given as attempt n. The attempt that reaches
// the limit already reports ErrTooManyAttempts.
func (s *ChallengeService) fail(ctx context.Context, step string, st challengeState, n int64, cause error) error {
	reason := reasonInvalidOTP
	switch {
	case errors.Is(cause, ErrInvalidBackupCode):
		reason = reasonInvalidBackup
	case errors.Is(cause, ErrBackupCodeAlreadyUsed):
		reason = reasonBackupReused
	}

	cause = s.exhausted(n, cause)
	if errors.Is(cause, ErrTooManyAttempts) {
		reason = reasonTooManyAttempts
	}

	s.failed(ctx, step, st, reason)
	return cause
}

func (s *ChallengeService) exhausted(n int64, cause error) error {
	if n >= int64(s.maxAttempts()) {
		return ErrTooManyAttempts
	}
	return cause
}

// reserveProof counts an MFA proof given from a signed-in session. The
// counter is per user and lasts as long as a challenge.
func (s *ChallengeService) reserveProof(ctx context.Context, userID, step string) (int64, error) {
	n, err := s.Cache.Incr(ctx, proofAttemptsKey(userID), s.ttl())
	if err != nil {
		return 0, fmt.Errorf("failed to count MFA proof: %w", err)
	}
	if n > int64(s.maxAttempts()) {
		s.Metrics.MFAStep(step, outcomeFailure)
		return n, ErrTooManyAttempts
	}
	return n, nil
}

func (s *ChallengeService) proofSucceeded(ctx context.Context, userID string) {
	_ = s.Cache.Delete(ctx, proofAttemptsKey(userID))
}

func (s *ChallengeService) failed(ctx context.Context, step string, st challengeState, reason string) {
	s.Metrics.MFAStep(step, outcomeFailure)
	record(ctx, s.Auditor, domain.AuditMFAChallenge, st.UserID, "", map[string]any{
		"step":    step,
		"outcome": outcomeFailure,
		"reason":  reason,
	})
}

func (s *ChallengeService) succeeded(ctx context.Context, step, fp string, st challengeState, issued domain.IssuedSession) {
	_ = s.Cache.Delete(ctx, attemptsKey(fp, channelOTP), attemptsKey(fp, channelBackup))

	s.Metrics.MFAStep(step, "ok")
	s.Metrics.Login(st.Method, "completed")
	record(ctx, s.Auditor, domain.AuditMFAChallenge, st.UserID, issued.Session.ID, map[string]any{
		"step":    step,
		"outcome": "completed",
		"method":  st.Method,
	})
}

// drop deletes a superseded challenge and its counters.
func (s *ChallengeService) drop(ctx context.Context, fp string) {
	if fp == "" {
		return
	}
	_ = s.Cache.Delete(ctx, challengeKey(fp), attemptsKey(fp, channelOTP), attemptsKey(fp, channelBackup))
}

func (s *ChallengeService) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultChallengeTTL
	}
	return s.TTL
}

func (s *ChallengeService) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

// withAMR appends the second factor and the mfa marker to the primary amr.
func withAMR(primary []string, factor string) []string {
	amr := slices.Clone(primary)
	for _, m := range []string{factor, jwtx.AMRMFA} {
		if !slices.Contains(amr, m) {
			amr = append(amr, m)
		}
	}
	return amr
}
