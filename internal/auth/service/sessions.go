package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/bluele/gcache"
)

const (
	defaultSessionTTL      = 24 * time.Hour
	defaultSessionCacheTTL = 5 * time.Second
	// A revoked session may be honoured by another process for at most this long.
	maxSessionCacheTTL = 30 * time.Second
)

type SessionConfig struct {
	Store    store.Store
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Auditor  Auditor
	Metrics  *telemetry.Metrics

	Issuer    string
	TTL       time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

// SessionService issues, validates and revokes sessions. The sessions table
// is the source of truth; positive validity checks are cached briefly.
type SessionService struct {
	Store    store.Store
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Auditor  Auditor
	Metrics  *telemetry.Metrics

	Issuer   string
	TTL      time.Duration
	CacheTTL time.Duration

	valid gcache.Cache
	now   func() time.Time
}

func NewSessionService(cfg SessionConfig) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultSessionCacheTTL
	}
	if cfg.CacheTTL > maxSessionCacheTTL {
		cfg.CacheTTL = maxSessionCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10_000
	}

	return &SessionService{
		Store:    cfg.Store,
		Signer:   cfg.Signer,
		Verifier: cfg.Verifier,
		Auditor:  cfg.Auditor,
		Metrics:  cfg.Metrics,
		Issuer:   cfg.Issuer,
		TTL:      cfg.TTL,
		CacheTTL: cfg.CacheTTL,
		valid:    gcache.New(cfg.CacheSize).LRU().Build(),
		now:      time.Now,
	}
}

func (s *SessionService) clock() time.Time { return s.now().UTC() }

// IssueTx inserts a session inside tx and signs its token. With
// ENB_ONLY_ONE_SESSION set, every other session of the user is revoked in
// the same transaction; those ids are returned so the caller can hand them
// to Committed once tx commits.
func (s *SessionService) IssueTx(
	ctx context.Context,
	tx store.Tx,
	user domain.User,
	device domain.Device,
	amr []string,
) (domain.IssuedSession, []string, error) {
	now := s.clock()

	only, err := tx.Settings().GetBool(ctx, domain.SettingOnlyOneSession)
	if err != nil {
		return domain.IssuedSession{}, nil, fmt.Errorf("failed to read session policy: %w", err)
	}

	var revoked []string
	if only {
		revoked, err = tx.Sessions().RevokeSessions(ctx, user.ID, nil, now)
		if err != nil {
			return domain.IssuedSession{}, nil, fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}

	sess := domain.Session{
		ID:        idx.NewAt(now).String(),
		UserID:    user.ID,
		IP:        device.IP,
		UserAgent: device.UserAgent,
		AMR:       amr,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	if err := tx.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.IssuedSession{}, nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.Signer.Sign(jwtx.NewSessionClaims(s.Issuer, user.ID, sess.ID, user.Role, amr, now, sess.ExpiresAt))
	if err != nil {
		return domain.IssuedSession{}, nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return domain.IssuedSession{Session: sess, AccessToken: token}, revoked, nil
}

// Issue creates a session in its own transaction.
func (s *SessionService) Issue(ctx context.Context, user domain.User, device domain.Device, amr []string) (domain.IssuedSession, error) {
	var (
		issued  domain.IssuedSession
		revoked []string
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		issued, revoked, err = s.IssueTx(ctx, tx, user, device, amr)
		return err
	})
	if err != nil {
		return domain.IssuedSession{}, err
	}

	s.Committed(ctx, user.ID, revoked)
	return issued, nil
}

// Committed runs the side effects of a committed IssueTx.
func (s *SessionService) Committed(ctx context.Context, userID string, revoked []string) {
	s.Metrics.SessionIssued()
	s.Revoked(ctx, userID, revokeSingleSession, revoked)
}

// RevokeTx revokes the listed sessions of userID inside tx. No ids means all.
func (s *SessionService) RevokeTx(ctx context.Context, tx store.Tx, userID string, ids ...string) ([]string, error) {
	revoked, err := tx.Sessions().RevokeSessions(ctx, userID, ids, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return revoked, nil
}

// Revoke revokes sessions of userID and returns the ids that were live.
func (s *SessionService) Revoke(ctx context.Context, userID, reason string, ids ...string) ([]string, error) {
	var revoked []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		revoked, err = s.RevokeTx(ctx, tx, userID, ids...)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Revoked(ctx, userID, reason, revoked)
	return revoked, nil
}

// Revoked purges ids from the validity cache and records the revocation.
// Call it after the revoking transaction committed.
func (s *SessionService) Revoked(ctx context.Context, userID, reason string, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.Forget(ids...)
	s.Metrics.SessionsRevoked(len(ids))

	record(ctx, s.Auditor, domain.AuditSessionRevoked, userID, "", map[string]any{
		"reason":      reason,
		"session_ids": ids,
	})
	slogx.FromContext(ctx).Info("sessions revoked",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int("count", len(ids)),
	)
}

// Forget drops ids from the validity cache.
func (s *SessionService) Forget(ids ...string) {
	for _, id := range ids {
		s.valid.Remove(id)
	}
}

// Logout revokes the caller's current session.
func (s *SessionService) Logout(ctx context.Context, p httpx.Principal) error {
	if _, err := s.Revoke(ctx, p.UserID, revokeLogout, p.SessionID); err != nil {
		return err
	}
	record(ctx, s.Auditor, domain.AuditLogout, p.UserID, p.SessionID, nil)
	return nil
}

// LogoutAll revokes every session of the caller.
func (s *SessionService) LogoutAll(ctx context.Context, p httpx.Principal) error {
	if _, err := s.Revoke(ctx, p.UserID, revokeLogoutAll); err != nil {
		return err
	}
	record(ctx, s.Auditor, domain.AuditLogout, p.UserID, p.SessionID, map[string]any{"all": true})
	return nil
}

// List returns sessions visible to p. Users see their own; admins may name
// another user or ask for all users.
func (s *SessionService) List(ctx context.Context, p httpx.Principal, f domain.SessionFilter) ([]domain.Session, error) {
	if f.AllUsers || (f.UserID != "" && f.UserID != p.UserID) {
		if !p.IsAdmin() {
			return nil, ErrForbidden
		}
	}
	if !f.AllUsers && f.UserID == "" {
		f.UserID = p.UserID
	}
	if f.AllUsers {
		f.UserID = ""
	}

	sessions, err := s.Store.Sessions().ListSessions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeFor revokes sessions of userID on behalf of p. An empty userID
// means the caller; ids empty means every session.
func (s *SessionService) RevokeFor(ctx context.Context, p httpx.Principal, userID string, ids []string) ([]string, error) {
	reason := revokeByUser
	if userID == "" {
		userID = p.UserID
	}
	if userID != p.UserID {
		if !p.IsAdmin() {
			return nil, ErrForbidden
		}
		reason = revokeByAdmin
	}
	return s.Revoke(ctx, userID, reason, ids...)
}

// Authenticate turns a bearer token into a principal. The signature is
// checked first, then the session row.
func (s *SessionService) Authenticate(ctx context.Context, bearer string) (httpx.Principal, error) {
	claims, err := s.Verifier.Verify(bearer)
	if err != nil {
		return httpx.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sess, err := s.Validate(ctx, claims.SID)
	if err != nil {
		return httpx.Principal{}, err
	}
	if sess.UserID != claims.Subject {
		return httpx.Principal{}, ErrInvalidToken
	}

	return httpx.Principal{
		UserID:    claims.Subject,
		SessionID: sess.ID,
		Role:      claims.Role,
		AMR:       claims.AMR,
	}, nil
}

// Validate returns the session if it is neither revoked nor expired.
func (s *SessionService) Validate(ctx context.Context, sid string) (domain.Session, error) {
	now := s.clock()

	if v, err := s.valid.Get(sid); err == nil {
		if sess, ok := v.(domain.Session); ok && sess.ActiveAt(now) {
			return sess, nil
		}
		s.valid.Remove(sid)
	}

	sess, err := s.Store.Sessions().GetSession(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrInvalidToken
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.ActiveAt(now) {
		return domain.Session{}, ErrInvalidToken
	}

	ttl := min(s.CacheTTL, sess.ExpiresAt.Sub(now))
	if ttl > 0 {
		_ = s.valid.SetWithExpire(sid, sess, ttl)
	}
	return sess, nil
}
