package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, user_id, ip, user_agent, amr, created_at, expires_at, revoked_at`

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.UserID,
		s.IP,
		s.UserAgent,
		strings.Join(s.AMR, " "),
		formatTime(nowOr(s.CreatedAt)),
		formatTime(s.ExpiresAt),
		mapOptionalTime(s.RevokedAt),
	)
	return mapUnique(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (r *sessionsRepo) ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.Session, error) {
	var (
		where []string
		args  []any
	)
	if !f.AllUsers {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ActiveOnly {
		where = append(where, "revoked_at IS NULL", "expires_at > ?")
		args = append(args, formatTime(time.Now()))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) RevokeSessions(ctx context.Context, userID string, ids []string, at time.Time) ([]string, error) {
	query := `UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`
	args := []any{formatTime(at), userID}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revoked := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		revoked = append(revoked, id)
	}
	return revoked, rows.Err()
}

func (r *sessionsRepo) DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	c := formatTime(cutoff)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)`, c, c)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		s                    domain.Session
		amr                  string
		createdAt, expiresAt string
		revokedAt            sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.IP, &s.UserAgent, &amr, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	s.AMR = strings.Fields(amr)
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Session{}, err
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return domain.Session{}, err
	}
	if s.RevokedAt, err = mapNullTimePtr(revokedAt); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}
