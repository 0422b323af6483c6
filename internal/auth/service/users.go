package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

type NewUser struct {
	Email    string
	Username string
	Password string
	Role     string
}

type UserService struct {
	Store   store.Store
	Hasher  PasswordHasher
	Auditor Auditor
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// CreateUser creates a password user. actorID is the admin doing it.
func (s *UserService) CreateUser(ctx context.Context, actorID string, req NewUser) (domain.User, error) {
	var u domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = s.CreateUserTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}

	record(ctx, s.Auditor, domain.AuditUserCreated, u.ID, "", map[string]any{
		"role":     u.Role,
		"actor_id": actorID,
	})
	slogx.FromContext(ctx).Info("user created", slog.String("user_id", u.ID), slog.String("role", u.Role))
	return u, nil
}

// CreateUserTx hashes the password and inserts the user inside tx.
func (s *UserService) CreateUserTx(ctx context.Context, tx store.Tx, req NewUser) (domain.User, error) {
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !slices.Contains([]string{domain.RoleUser, domain.RoleAdmin}, role) {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = tx.Users().CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.User{}, fmt.Errorf("%w: email or username is taken", ErrAlreadyExists)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
