package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

type settingsRepo struct {
	db dbtx
}

func (r *settingsRepo) GetBool(ctx context.Context, key string) (bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(mapNotFound(err), store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	return b, nil
}

func (r *settingsRepo) SetBool(ctx context.Context, key string, value bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatBool(value), formatTime(time.Now()),
	)
	return err
}
