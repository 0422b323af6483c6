package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/provider"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

const defaultProviderTimeout = 5 * time.Second

// IdentityService signs users in with third-party identities and links
// Telegram accounts.
type IdentityService struct {
	Store     store.Store
	Providers *provider.Registry
	Telegram  *provider.TelegramVerifier
	Logins    *CredentialService
	Auditor   Auditor
	Metrics   *telemetry.Metrics

	// Timeout bounds one provider verification.
	Timeout time.Duration
}

// ProviderLogin verifies assertion with the named provider, resolves it to
// a local user and continues like a password login.
func (s *IdentityService) ProviderLogin(ctx context.Context, name, assertion string, device domain.Device) (LoginResult, error) {
	ctx = WithDevice(ctx, device)
	l := slogx.FromContext(ctx)

	v, err := s.Providers.Get(name)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, name)
	}

	a, err := s.verify(ctx, v, assertion)
	switch {
	case errors.Is(err, provider.ErrUnavailable):
		l.Warn("identity provider unavailable", slog.String("provider", name), slog.Any("error", err))
		s.failed(ctx, "", name, reasonProviderDown)
		return LoginResult{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case err != nil:
		l.Info("identity assertion rejected", slog.String("provider", name), slog.Any("error", err))
		s.failed(ctx, "", name, reasonInvalidAssertion)
		return LoginResult{}, ErrInvalidIdentity
	}

	user, linked, err := s.resolve(ctx, a)
	if errors.Is(err, store.ErrAlreadyExists) {
		// A concurrent login for the same identity won the insert.
		user, linked, err = s.resolve(ctx, a)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrIdentityConflict):
			s.failed(ctx, "", name, reasonIdentityConflict)
		case errors.Is(err, ErrInvalidIdentity):
			s.failed(ctx, "", name, reasonInvalidAssertion)
		}
		return LoginResult{}, err
	}

	if linked {
		record(ctx, s.Auditor, domain.AuditIdentityLinked, user.ID, "", map[string]any{
			"provider": a.Provider,
			"subject":  a.Subject,
		})
	}
	return s.Logins.CompleteLogin(ctx, user, name, []string{jwtx.AMRFederated}, device)
}

func (s *IdentityService) verify(ctx context.Context, v provider.Verifier, assertion string) (domain.Assertion, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return v.Verify(ctx, assertion)
}

// resolve maps an assertion to a user in one transaction: an existing link,
// then a verified email match, then a new account. linked reports whether a
// new link was written.
func (s *IdentityService) resolve(ctx context.Context, a domain.Assertion) (domain.User, bool, error) {
	var (
		user   domain.User
		linked bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		link, err := tx.Identities().GetIdentity(ctx, a.Provider, a.Subject)
		if err == nil {
			user, err = tx.Users().GetUserByID(ctx, link.UserID)
			return err
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if a.Email == "" {
			// Without an email there is nothing to match or create an account
			// from; such identities must be linked while signed in.
			return ErrInvalidIdentity
		}

		user, err = tx.Users().GetUserByEmail(ctx, a.Email)
		switch {
		case err == nil:
			if !a.EmailVerified {
				return ErrIdentityConflict
			}
			links, err := tx.Identities().FindLinks(ctx, a.Provider, user.ID, a.Subject)
			if err != nil {
				return err
			}
			if len(links) > 0 {
				return ErrIdentityConflict
			}
		case errors.Is(err, store.ErrNotFound):
			now := time.Now().UTC()
			user = domain.User{
				ID:        idx.NewAt(now).String(),
				Email:     a.Email,
				Role:      domain.RoleUser,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Users().CreateUser(ctx, user); err != nil {
				return err
			}
		default:
			return err
		}

		linked = true
		return tx.Identities().CreateIdentity(ctx, domain.Identity{
			ID:        idx.New().String(),
			UserID:    user.ID,
			Provider:  a.Provider,
			Subject:   a.Subject,
			Email:     a.Email,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return user, linked, nil
}

// LinkTelegram verifies Telegram login widget data and links the account to
// userID.
func (s *IdentityService) LinkTelegram(ctx context.Context, userID string, fields map[string]string) (domain.Identity, error) {
	if s.Telegram == nil {
		return domain.Identity{}, fmt.Errorf("%w: telegram is not configured", ErrProviderUnavailable)
	}

	a, err := s.Telegram.VerifyFields(fields)
	if err != nil {
		slogx.FromContext(ctx).Info("telegram data rejected", slog.String("user_id", userID), slog.Any("error", err))
		return domain.Identity{}, ErrInvalidTelegramAccount
	}

	ident := domain.Identity{
		ID:        idx.New().String(),
		UserID:    userID,
		Provider:  domain.ProviderTelegram,
		Subject:   a.Subject,
		CreatedAt: time.Now().UTC(),
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		links, err := tx.Identities().FindLinks(ctx, domain.ProviderTelegram, userID, a.Subject)
		if err != nil {
			return err
		}
		if len(links) > 0 {
			return ErrTelegramAccountWasLinked
		}
		return tx.Identities().CreateIdentity(ctx, ident)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.Identity{}, ErrTelegramAccountWasLinked
	}
	if err != nil {
		return domain.Identity{}, err
	}

	record(ctx, s.Auditor, domain.AuditIdentityLinked, userID, "", map[string]any{
		"provider": domain.ProviderTelegram,
		"subject":  a.Subject,
	})
	return ident, nil
}

// ListIdentities returns the identities linked to userID.
func (s *IdentityService) ListIdentities(ctx context.Context, userID string) ([]domain.Identity, error) {
	ids, err := s.Store.Identities().ListIdentities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return ids, nil
}

func (s *IdentityService) failed(ctx context.Context, userID, method, reason string) {
	s.Metrics.Login(method, outcomeFailure)
	record(ctx, s.Auditor, domain.AuditLogin, userID, "", map[string]any{
		"method":  method,
		"outcome": outcomeFailure,
		"reason":  reason,
	})
}
