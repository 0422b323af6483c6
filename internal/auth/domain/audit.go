package domain

import "time"

// Audit entry types.
const (
	AuditLogin              = "login"
	AuditLogout             = "logout"
	AuditSessionRevoked     = "session.revoked"
	AuditMFASetupRequested  = "mfa.setup_requested"
	AuditMFAEnabled         = "mfa.enabled"
	AuditMFADisabled        = "mfa.disabled"
	AuditMFAReset           = "mfa.reset"
	AuditMFAChallenge       = "mfa.challenge"
	AuditBackupCodesRenewed = "mfa.backup_codes_regenerated"
	AuditIdentityLinked     = "identity.linked"
	AuditUserCreated        = "user.created"
	AuditSettingChanged     = "setting.changed"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        string
	Type      string
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Payload   map[string]any
	CreatedAt time.Time
}
