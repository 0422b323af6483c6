package authsdk

import "time"

// Login outcomes.
const (
	OutcomeCompleted  = "completed"
	OutcomeMFAConfirm = "mfa-confirm"
	OutcomeMFASetup   = "mfa-setup"
)

// MFA methods offered on the mfa-confirm branch.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_credentials"`
	ErrorDescription string `json:"error_description,omitempty" example:"invalid credentials"`
}

// ============================================================================
// Login flow
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login. Identifier is an email
// address or a username.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254" example:"alice@example.com"`
	Password   string `json:"password" validate:"required,max=1024" example:"correct horse battery staple"`
}

// LoginResponse carries exactly one branch, named by Outcome.
type LoginResponse struct {
	Outcome string `json:"outcome" example:"mfa-confirm"`

	// completed
	Session *SessionResponse `json:"session,omitempty"`

	// mfa-confirm
	MFAToken string   `json:"mfa_token,omitempty"`
	Methods  []string `json:"methods,omitempty"`

	// mfa-setup
	SetupToken string `json:"setup_token,omitempty"`
}

// SessionResponse is returned whenever a session is issued.
type SessionResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type" example:"Bearer"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	AMR         []string  `json:"amr,omitempty"`
}

// MFASetupRequest exchanges the setup token from an mfa-setup login.
type MFASetupRequest struct {
	SetupToken string `json:"setup_token" validate:"required,max=128"`
}

// MFASetupResponse reveals the secret to enroll in an authenticator app.
type MFASetupResponse struct {
	MFAToken   string `json:"mfa_token"`
	TOTPSecret string `json:"totp_secret" example:"JBSWY3DPEHPK3PXP"`
	OTPAuthURL string `json:"otpauth_url"`
}

// MFAConfirmSetupRequest proves possession of the authenticator.
type MFAConfirmSetupRequest struct {
	MFAToken string `json:"mfa_token" validate:"required,max=128"`
	OTP      string `json:"otp" validate:"required,numeric,len=6" example:"123456"`
}

// MFAConfirmSetupResponse returns the backup codes once, in plaintext. When
// setup started from a login, MFAToken and LoginToken continue the login.
type MFAConfirmSetupResponse struct {
	MFAToken    string   `json:"mfa_token,omitempty"`
	LoginToken  string   `json:"login_token,omitempty"`
	BackupCodes []string `json:"backup_codes"`
}

// MFAOTPRequest completes an mfa-confirm login with a TOTP code.
type MFAOTPRequest struct {
	MFAToken string `json:"mfa_token" validate:"required,max=128"`
	OTP      string `json:"otp" validate:"required,numeric,len=6" example:"123456"`
}

// MFAConfirmLoginRequest completes a login that went through setup.
type MFAConfirmLoginRequest struct {
	MFAToken   string `json:"mfa_token" validate:"required,max=128"`
	LoginToken string `json:"login_token" validate:"required,max=128"`
	OTP        string `json:"otp" validate:"required,numeric,len=6" example:"123456"`
}

// MFABackupRequest completes an mfa-confirm login with a backup code.
type MFABackupRequest struct {
	MFAToken   string `json:"mfa_token" validate:"required,max=128"`
	BackupCode string `json:"backup_code" validate:"required,min=8,max=32" example:"ABCD-EFGH"`
}

// ProviderLoginRequest carries a signed assertion, e.g. a Google ID token.
type ProviderLoginRequest struct {
	Assertion string `json:"assertion" validate:"required,max=8192"`
}

// ============================================================================
// Authenticated account operations
// ============================================================================

// StartMFASetupResponse is returned by POST /v1/mfa/setup.
type StartMFASetupResponse struct {
	SetupToken string `json:"setup_token"`
}

// TOTPSecretResponse reveals the pending secret. Served once per setup token.
type TOTPSecretResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// MFAProofRequest proves possession of the second factor with exactly one of
// a TOTP code or a backup code.
type MFAProofRequest struct {
	OTP        string `json:"otp,omitempty" validate:"omitempty,numeric,len=6"`
	BackupCode string `json:"backup_code,omitempty" validate:"omitempty,min=8,max=32"`
}

// RegenerateBackupCodesRequest requires a fresh TOTP code.
type RegenerateBackupCodesRequest struct {
	OTP string `json:"otp" validate:"required,numeric,len=6"`
}

// BackupCodesResponse returns freshly generated backup codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// SessionInfo describes one session row.
type SessionInfo struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	IP        string     `json:"ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	AMR       []string   `json:"amr,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Current   bool       `json:"current"`
}

// RevokeSessionsRequest revokes sessions. Without SessionIDs every session of
// the user is revoked. UserID defaults to the caller; only admins may name
// another user.
type RevokeSessionsRequest struct {
	UserID     string   `json:"user_id,omitempty" validate:"omitempty,max=64"`
	SessionIDs []string `json:"session_ids,omitempty" validate:"omitempty,max=100,dive,required,max=64"`
}

// RevokeSessionsResponse lists the sessions that were actually revoked.
type RevokeSessionsResponse struct {
	Revoked []string `json:"revoked"`
}

// IdentityResponse describes a linked external identity.
type IdentityResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider" example:"google"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TelegramLinkRequest is the payload produced by the Telegram login widget.
type TelegramLinkRequest struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	FirstName string `json:"first_name,omitempty" validate:"max=256"`
	LastName  string `json:"last_name,omitempty" validate:"max=256"`
	Username  string `json:"username,omitempty" validate:"max=64"`
	PhotoURL  string `json:"photo_url,omitempty" validate:"omitempty,url,max=1024"`
	AuthDate  int64  `json:"auth_date" validate:"required,gt=0"`
	Hash      string `json:"hash" validate:"required,hexadecimal,len=64"`
}

// ============================================================================
// Administration
// ============================================================================

// CreateUserRequest creates a password user.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username,omitempty" validate:"omitempty,alphanum,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

// BootstrapRequest creates the first admin. Only accepted while no user exists.
type BootstrapRequest struct {
	Token    string `json:"token" validate:"required,max=256"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username,omitempty" validate:"omitempty,alphanum,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// UserResponse describes a user without secrets.
type UserResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username,omitempty"`
	Role       string     `json:"role"`
	MFAEnabled *time.Time `json:"mfa_enabled,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SettingRequest sets a boolean setting.
type SettingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SettingResponse reports a boolean setting.
type SettingResponse struct {
	Key     string `json:"key" example:"ENB_ONLY_ONE_SESSION"`
	Enabled bool   `json:"enabled"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Uptime  string            `json:"uptime,omitempty" example:"1h2m3s"`
	Version string            `json:"version,omitempty" example:"0.1.0"`
	Checks  map[string]string `json:"checks,omitempty"`
}
