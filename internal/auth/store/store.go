package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrConflict is returned when a conditional update found the row in
	// the wrong state, e.g. enabling MFA twice or reusing a backup code.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable, and so a
// Tx cannot start another transaction by accident.
type Store interface {
	Users() Users
	Sessions() Sessions
	BackupCodes() BackupCodes
	Identities() Identities
	Audit() Audit
	Settings() Settings

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier matches the email or the username, case-insensitively.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// GetUserByEmail is used to attach provider identities to existing accounts.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user. Returns ErrAlreadyExists on a duplicate
	// email or username.
	CreateUser(ctx context.Context, u domain.User) error

	// EnableMFA writes the secret and the enabled timestamp in one statement,
	// only if MFA is currently disabled. Returns ErrConflict otherwise.
	EnableMFA(ctx context.Context, userID, secret string, at time.Time) error

	// DisableMFA clears both MFA columns, only if MFA is currently enabled.
	// Returns ErrConflict otherwise.
	DisableMFA(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	GetSession(ctx context.Context, id string) (domain.Session, error)

	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, f domain.SessionFilter) ([]domain.Session, error)

	// RevokeSessions marks the user's non-revoked sessions as revoked. An
	// empty ids list means every session of the user. The ids actually
	// revoked are returned.
	RevokeSessions(ctx context.Context, userID string, ids []string, at time.Time) ([]string, error)

	// DeleteStaleSessions removes sessions that expired or were revoked before cutoff.
	DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type BackupCodes interface {
	// ReplaceBackupCodes drops every code of the user and stores hashes.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ConsumeBackupCode marks a code used with a conditional update, so only
	// one concurrent caller can succeed. Returns ErrNotFound for unknown
	// codes and ErrConflict for codes already used.
	ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) error

	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUnused returns how many codes are still usable.
	CountUnused(ctx context.Context, userID string) (int, error)
}

type Identities interface {
	// CreateIdentity returns ErrAlreadyExists when (provider, subject) or
	// (user_id, provider) is taken.
	CreateIdentity(ctx context.Context, i domain.Identity) error

	GetIdentity(ctx context.Context, provider, subject string) (domain.Identity, error)

	// FindLinks returns the provider links owned by userID or bound to
	// subject, in a single query.
	FindLinks(ctx context.Context, provider, userID, subject string) ([]domain.Identity, error)

	ListIdentities(ctx context.Context, userID string) ([]domain.Identity, error)
}

type Audit interface {
	AppendAudit(ctx context.Context, e domain.AuditEntry) error

	// ListAudit returns the newest entries first. An empty userID lists all.
	ListAudit(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)

	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Settings interface {
	// GetBool reads a boolean setting. Missing keys read as false.
	GetBool(ctx context.Context, key string) (bool, error)

	SetBool(ctx context.Context, key string, value bool) error
}
