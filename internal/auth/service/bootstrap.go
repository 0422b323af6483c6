package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

var (
	ErrBootstrapAlready      = newError(ErrAlreadyExists.Code, "system already bootstrapped")
	ErrBootstrapUnauthorized = newError(ErrForbidden.Code, "unauthorized bootstrap attempt")
)

type BootstrapService struct {
	Store store.Store
	Users *UserService
	Token string // Pre-configured bootstrap token
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates the first admin. It only works while there are no
// users and the configured token matches.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req domain.BootstrapData) (domain.User, error) {
	l := slogx.FromContext(ctx)

	// 1. Check if already bootstrapped
	if bootstrapped, _ := s.IsBootstrapped(ctx); bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.User{}, ErrBootstrapAlready
	}

	// 2. Validate provided token
	if s.Token == "" || !cryptox.EqualTokens(token, s.Token) {
		l.Warn("unauthorized bootstrap attempt")
		return domain.User{}, ErrBootstrapUnauthorized
	}

	// 3. Create the admin, re-checking emptiness inside the transaction
	var admin domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return ErrBootstrapAlready
		}

		admin, err = s.Users.CreateUserTx(ctx, tx, NewUser{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
			Role:     domain.RoleAdmin,
		})
		return err
	})
	if errors.Is(err, ErrBootstrapAlready) {
		return domain.User{}, err
	}
	if err != nil {
		l.Error("failed to create admin user", slog.Any("error", err))
		return domain.User{}, fmt.Errorf("bootstrap: %w", err)
	}

	record(ctx, s.Users.Auditor, domain.AuditUserCreated, admin.ID, "", map[string]any{
		"role":      admin.Role,
		"bootstrap": true,
	})
	l.Info("successfully bootstrapped system", slog.String("admin_user_id", admin.ID))
	return admin, nil
}
