package service

import (
	"context"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

// Auditor receives audit entries. Implementations must not drop entries,
// and callers must not hold a transaction open while recording.
type Auditor interface {
	Record(ctx context.Context, e domain.AuditEntry)
}

type deviceKey struct{}

// WithDevice stores the request device on ctx for audit entries.
func WithDevice(ctx context.Context, d domain.Device) context.Context {
	return context.WithValue(ctx, deviceKey{}, d)
}

// DeviceFrom returns the device stored by WithDevice, or the zero value.
func DeviceFrom(ctx context.Context) domain.Device {
	d, _ := ctx.Value(deviceKey{}).(domain.Device)
	return d
}

func record(ctx context.Context, a Auditor, typ, userID, sessionID string, payload map[string]any) {
	if a == nil {
		return
	}
	d := DeviceFrom(ctx)
	a.Record(ctx, domain.AuditEntry{
		Type:      typ,
		UserID:    userID,
		SessionID: sessionID,
		IP:        d.IP,
		UserAgent: d.UserAgent,
		Payload:   payload,
	})
}

// Failure reasons recorded in login and MFA audit payloads.
const (
	reasonUnknownUser      = "unknown_user"
	reasonBadPassword      = "bad_password"
	reasonSuspicious       = "suspicious"
	reasonInvalidOTP       = "invalid_otp"
	reasonInvalidBackup    = "invalid_backup_code"
	reasonBackupReused     = "backup_code_already_used"
	reasonTooManyAttempts  = "too_many_attempts"
	reasonInvalidAssertion = "invalid_assertion"
	reasonProviderDown     = "provider_unavailable"
	reasonIdentityConflict = "identity_conflict"
)

// Reasons for session revocation.
const (
	revokeLogout        = "logout"
	revokeLogoutAll     = "logout_all"
	revokeSingleSession = "single_session"
	revokeMFAEnabled    = "mfa_enabled"
	revokeMFADisabled   = "mfa_disabled"
	revokeByUser        = "user"
	revokeByAdmin       = "admin"
)

// Outcome label used for failed steps in audit payloads and metrics.
const outcomeFailure = "failure"
