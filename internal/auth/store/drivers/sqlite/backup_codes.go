package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

type backupCodesRepo struct {
	db dbtx
}

// ReplaceBackupCodes should run inside a transaction so that the old set
// never disappears without the new one.
func (r *backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if err := r.DeleteAllBackupCodes(ctx, userID); err != nil {
		return err
	}

	now := formatTime(time.Now())
	for _, h := range hashes {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
			userID, h, now,
		)
		if err != nil {
			return mapUnique(err)
		}
	}
	return nil
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_codes SET used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		formatTime(at), userID, hash,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var usedAt sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT used_at FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, hash,
	).Scan(&usedAt)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`, userID,
	).Scan(&n)
	return n, err
}
