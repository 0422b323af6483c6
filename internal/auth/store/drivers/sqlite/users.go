package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, username, password_hash, role, mfa_enabled, mfa_secret, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	// An email match wins over a username that happens to look the same.
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email = ? OR username = ?
		ORDER BY email = ? DESC
		LIMIT 1`, identifier, identifier, identifier)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	created := nowOr(u.CreatedAt)
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		mapStringNull(u.Username),
		u.PasswordHash,
		role,
		mapOptionalTime(u.MFAEnabled),
		mapOptionalString(u.MFASecret),
		formatTime(created),
		formatTime(updated),
	)
	return mapUnique(err)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID, secret string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_enabled = ?, mfa_secret = ?, updated_at = ?
		WHERE id = ? AND mfa_enabled IS NULL`,
		formatTime(at), secret, formatTime(at), userID,
	)
	if err != nil {
		return err
	}
	return r.conditional(ctx, res, userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_enabled = NULL, mfa_secret = NULL, updated_at = ?
		WHERE id = ? AND mfa_enabled IS NOT NULL`,
		formatTime(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return r.conditional(ctx, res, userID)
}

// conditional resolves a zero-row conditional update into ErrNotFound or
// ErrConflict.
func (r *usersRepo) conditional(ctx context.Context, res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		username             sql.NullString
		mfaEnabled           sql.NullString
		mfaSecret            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&username,
		&u.PasswordHash,
		&u.Role,
		&mfaEnabled,
		&mfaSecret,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Username = mapNullString(username)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	if u.MFAEnabled, err = mapNullTimePtr(mfaEnabled); err != nil {
		return domain.User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
