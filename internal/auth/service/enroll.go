package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
)

const defaultSetupTTL = 10 * time.Minute

// enrollGrant lets a user who passed the primary factor, but has no MFA
// yet, start setup without holding a session.
type enrollGrant struct {
	UserID string        `json:"user_id"`
	Method string        `json:"method"`
	AMR    []string      `json:"amr"`
	Device domain.Device `json:"device"`
}

// Enrollments hands out one-shot enrollment grants.
type Enrollments struct {
	Cache cache.Store
	TTL   time.Duration
}

// Grant stores a grant for user and returns its setup token.
func (e *Enrollments) Grant(ctx context.Context, userID, method string, amr []string, device domain.Device) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	g := enrollGrant{UserID: userID, Method: method, AMR: amr, Device: device}
	if err := cache.SetJSON(ctx, e.Cache, enrollKey(cryptox.FingerprintToken(token)), g, e.ttl()); err != nil {
		return "", fmt.Errorf("failed to store enrollment grant: %w", err)
	}
	return token, nil
}

func (e *Enrollments) take(ctx context.Context, token string) (enrollGrant, error) {
	var g enrollGrant
	err := cache.TakeJSON(ctx, e.Cache, enrollKey(cryptox.FingerprintToken(token)), &g)
	if errors.Is(err, cache.ErrNotFound) {
		return enrollGrant{}, ErrSessionExpired
	}
	if err != nil {
		return enrollGrant{}, fmt.Errorf("failed to load enrollment grant: %w", err)
	}
	return g, nil
}

func (e *Enrollments) ttl() time.Duration {
	if e.TTL <= 0 {
		return defaultSetupTTL
	}
	return e.TTL
}
