package domain

import "time"

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string
	Email        string
	Username     string     // optional
	PasswordHash string     // argon2 encoded; empty for provider-only accounts
	Role         string     // RoleUser or RoleAdmin
	MFAEnabled   *time.Time // Timestamp when MFA was enabled (nullable)
	MFASecret    *string    // TOTP secret (nullable, base32 encoded)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasMFA reports whether a second factor is enrolled. The secret and the
// timestamp are always written together.
func (u User) HasMFA() bool {
	return u.MFAEnabled != nil && u.MFASecret != nil
}

// AccountName is the label shown in authenticator apps.
func (u User) AccountName() string {
	if u.Email != "" {
		return u.Email
	}
	return u.Username
}

// BootstrapData describes the first admin account.
type BootstrapData struct {
	Email    string
	Username string
	Password string
}
