package sqlite

import (
	"context"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type identitiesRepo struct {
	db dbtx
}

const identityColumns = `id, user_id, provider, subject, email, created_at`

func (r *identitiesRepo) CreateIdentity(ctx context.Context, i domain.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.Provider, i.Subject, i.Email, formatTime(nowOr(i.CreatedAt)),
	)
	return mapUnique(err)
}

func (r *identitiesRepo) GetIdentity(ctx context.Context, provider, subject string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = ? AND subject = ?`,
		provider, subject,
	)
	return scanIdentity(row)
}

func (r *identitiesRepo) FindLinks(ctx context.Context, provider, userID, subject string) ([]domain.Identity, error) {
	return r.list(ctx,
		`SELECT `+identityColumns+` FROM identities
		WHERE provider = ? AND (user_id = ? OR subject = ?)
		ORDER BY created_at`,
		provider, userID, subject,
	)
}

func (r *identitiesRepo) ListIdentities(ctx context.Context, userID string) ([]domain.Identity, error) {
	return r.list(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE user_id = ? ORDER BY provider`,
		userID,
	)
}

func (r *identitiesRepo) list(ctx context.Context, query string, args ...any) ([]domain.Identity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Identity{}
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanIdentity(row scanner) (domain.Identity, error) {
	var (
		i         domain.Identity
		createdAt string
	)
	if err := row.Scan(&i.ID, &i.UserID, &i.Provider, &i.Subject, &i.Email, &createdAt); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	var err error
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Identity{}, err
	}
	return i, nil
}
