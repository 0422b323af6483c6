package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

// Client talks to the purse auth service. Unauthenticated calls live here;
// WithToken returns a Session for the rest.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with a bounded HTTP timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login verifies a password. The response names the next step.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", LoginRequest{Identifier: identifier, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestMFASetup exchanges the setup token from an mfa-setup login for a
// TOTP secret and an MFA token.
func (c *Client) RequestMFASetup(ctx context.Context, setupToken string) (*MFASetupResponse, error) {
	var out MFASetupResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/mfa/setup", "", MFASetupRequest{SetupToken: setupToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmMFASetup enables MFA with a code from the freshly enrolled app.
func (c *Client) ConfirmMFASetup(ctx context.Context, mfaToken, otp string) (*MFAConfirmSetupResponse, error) {
	var out MFAConfirmSetupResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/mfa/setup/confirm", "", MFAConfirmSetupRequest{MFAToken: mfaToken, OTP: otp}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginWithMFA completes an mfa-confirm login with a TOTP code.
func (c *Client) LoginWithMFA(ctx context.Context, mfaToken, otp string) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/mfa/otp", "", MFAOTPRequest{MFAToken: mfaToken, OTP: otp}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmMFALogin completes a login that went through MFA setup.
func (c *Client) ConfirmMFALogin(ctx context.Context, mfaToken, loginToken, otp string) (*SessionResponse, error) {
	var out SessionResponse
	req := MFAConfirmLoginRequest{MFAToken: mfaToken, LoginToken: loginToken, OTP: otp}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/mfa/confirm", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyBackupCode completes an mfa-confirm login with a backup code.
func (c *Client) VerifyBackupCode(ctx context.Context, mfaToken, code string) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/mfa/backup", "", MFABackupRequest{MFAToken: mfaToken, BackupCode: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProviderLogin signs in with a third-party assertion such as a Google ID token.
func (c *Client) ProviderLogin(ctx context.Context, provider, assertion string) (*LoginResponse, error) {
	var out LoginResponse
	path := "/v1/auth/providers/" + url.PathEscape(provider)
	if err := c.do(ctx, http.MethodPost, path, "", ProviderLoginRequest{Assertion: assertion}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Bootstrap creates the first admin user.
func (c *Client) Bootstrap(ctx context.Context, req BootstrapRequest) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/v1/bootstrap", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Livez reports whether the process is up.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz reports whether the database, cache and signer are usable.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JWKS fetches the public keys that verify session tokens.
func (c *Client) JWKS(ctx context.Context) (*jwtx.JWKS, error) {
	var out jwtx.JWKS
	if err := c.do(ctx, http.MethodGet, "/.well-known/jwks.json", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WithToken returns a Session that authenticates with an access token.
func (c *Client) WithToken(accessToken string) *Session {
	return &Session{client: c, token: accessToken}
}

// Session performs calls on behalf of a signed-in user.
type Session struct {
	client *Client
	token  string
}

func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	return s.client.do(ctx, method, path, s.token, in, out)
}

// Logout revokes the current session.
func (s *Session) Logout(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
}

// LogoutAll revokes every session of the caller, this one included.
func (s *Session) LogoutAll(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/v1/auth/logout-all", nil, nil)
}

// StartMFASetup begins enrollment for a signed-in user.
func (s *Session) StartMFASetup(ctx context.Context) (string, error) {
	var out StartMFASetupResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/setup", nil, &out); err != nil {
		return "", err
	}
	return out.SetupToken, nil
}

// TOTPSecret reveals the secret behind a setup token. Works once per token.
func (s *Session) TOTPSecret(ctx context.Context, setupToken string) (*TOTPSecretResponse, error) {
	var out TOTPSecretResponse
	path := "/v1/mfa/setup/" + url.PathEscape(setupToken) + "/secret"
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableMFA turns MFA off. Every session of the user is revoked.
func (s *Session) DisableMFA(ctx context.Context, proof MFAProofRequest) error {
	return s.do(ctx, http.MethodPost, "/v1/mfa/disable", proof, nil)
}

// ResetMFA clears MFA so it can be enrolled again. Every session is revoked.
// The returned setup token continues with RequestMFASetup.
func (s *Session) ResetMFA(ctx context.Context, proof MFAProofRequest) (string, error) {
	var out StartMFASetupResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/reset", proof, &out); err != nil {
		return "", err
	}
	return out.SetupToken, nil
}

// RegenerateBackupCodes replaces all backup codes.
func (s *Session) RegenerateBackupCodes(ctx context.Context, otp string) ([]string, error) {
	var out BackupCodesResponse
	if err := s.do(ctx, http.MethodPost, "/v1/mfa/backup-codes", RegenerateBackupCodesRequest{OTP: otp}, &out); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

// ListSessions lists the caller's sessions. Admins may pass a user id, or
// "all" for every user.
func (s *Session) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	path := "/v1/sessions"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	var out []SessionInfo
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeSessions revokes sessions and returns the ids that were revoked.
func (s *Session) RevokeSessions(ctx context.Context, req RevokeSessionsRequest) ([]string, error) {
	var out RevokeSessionsResponse
	if err := s.do(ctx, http.MethodPost, "/v1/sessions/revoke", req, &out); err != nil {
		return nil, err
	}
	return out.Revoked, nil
}

// ListIdentities lists the caller's linked identities.
func (s *Session) ListIdentities(ctx context.Context) ([]IdentityResponse, error) {
	var out []IdentityResponse
	if err := s.do(ctx, http.MethodGet, "/v1/identities", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LinkTelegram links a Telegram account to the caller.
func (s *Session) LinkTelegram(ctx context.Context, req TelegramLinkRequest) (*IdentityResponse, error) {
	var out IdentityResponse
	if err := s.do(ctx, http.MethodPost, "/v1/identities/telegram", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser creates a user. Admin only.
func (s *Session) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	var out UserResponse
	if err := s.do(ctx, http.MethodPost, "/v1/users", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSetting reads a boolean setting. Admin only.
func (s *Session) GetSetting(ctx context.Context, key string) (bool, error) {
	var out SettingResponse
	if err := s.do(ctx, http.MethodGet, "/v1/settings/"+url.PathEscape(key), nil, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// PutSetting writes a boolean setting. Admin only.
func (s *Session) PutSetting(ctx context.Context, key string, enabled bool) error {
	return s.do(ctx, http.MethodPut, "/v1/settings/"+url.PathEscape(key), SettingRequest{Enabled: &enabled}, nil)
}
