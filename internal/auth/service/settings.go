package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
)

// SettingsService reads and writes the boolean runtime settings.
type SettingsService struct {
	Store   store.Store
	Auditor Auditor
}

func (s *SettingsService) Get(ctx context.Context, key string) (bool, error) {
	if !slices.Contains(domain.KnownSettings, key) {
		return false, ErrNotFound
	}
	v, err := s.Store.Settings().GetBool(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read setting: %w", err)
	}
	return v, nil
}

func (s *SettingsService) Set(ctx context.Context, actorID, key string, value bool) error {
	if !slices.Contains(domain.KnownSettings, key) {
		return ErrNotFound
	}
	if err := s.Store.Settings().SetBool(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	record(ctx, s.Auditor, domain.AuditSettingChanged, actorID, "", map[string]any{
		"key":   key,
		"value": value,
	})
	return nil
}
