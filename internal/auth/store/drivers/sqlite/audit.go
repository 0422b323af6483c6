package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type auditRepo struct {
	db dbtx
}

const auditColumns = `id, type, user_id, session_id, ip, user_agent, payload, created_at`

func (r *auditRepo) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	payload := []byte("{}")
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Type,
		mapStringNull(e.UserID),
		mapStringNull(e.SessionID),
		mapStringNull(e.IP),
		mapStringNull(e.UserAgent),
		string(payload),
		formatTime(nowOr(e.CreatedAt)),
	)
	return mapUnique(err)
}

func (r *auditRepo) ListAudit(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e                     domain.AuditEntry
			user, session, ip, ua sql.NullString
			payload, createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.Type, &user, &session, &ip, &ua, &payload, &createdAt); err != nil {
			return nil, err
		}
		e.UserID = mapNullString(user)
		e.SessionID = mapNullString(session)
		e.IP = mapNullString(ip)
		e.UserAgent = mapNullString(ua)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode audit payload %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
