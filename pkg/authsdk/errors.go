package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an error code by how a caller should react to it.
type ErrorKind string

const (
	// KindValidation: malformed input, fix the request.
	KindValidation ErrorKind = "validation"
	// KindAuthentication: wrong secret, retry with the right one.
	KindAuthentication ErrorKind = "authentication"
	// KindState: the caller is out of sync with the server and must restart
	// the flow from credentials.
	KindState ErrorKind = "state"
	// KindPolicy: refused by policy. Distinct from authentication so clients
	// can stop offering retries.
	KindPolicy ErrorKind = "policy"
	// KindUpstream: an identity provider failed. Retryable.
	KindUpstream ErrorKind = "upstream"
	KindServer   ErrorKind = "server"
)

const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"

	CodeInvalidCredentials     = "invalid_credentials"
	CodeInvalidOTP             = "invalid_otp"
	CodeInvalidBackupCode      = "invalid_backup_code"
	CodeBackupCodeAlreadyUsed  = "backup_code_already_used"
	CodeInvalidIdentity        = "invalid_identity"
	CodeInvalidTelegramAccount = "invalid_telegram_account"
	CodeInvalidToken           = "invalid_token"

	CodeSessionExpired           = "session_expired"
	CodeMFAHasBeenSetup          = "mfa_has_been_setup"
	CodeMFANotEnabled            = "mfa_not_enabled"
	CodeTelegramAccountWasLinked = "telegram_account_was_linked"
	CodeIdentityConflict         = "identity_conflict"
	CodeAlreadyExists            = "already_exists"

	CodeSuspiciousLoginBlocked = "suspicious_login_blocked"
	CodeTooManyAttempts        = "too_many_attempts"
	CodeForbidden              = "forbidden"
	CodeRateLimitExceeded      = "rate_limit_exceeded"

	CodeProviderUnavailable = "provider_unavailable"

	CodeServerError = "server_error"
)

var codeKinds = map[string]ErrorKind{
	CodeInvalidRequest: KindValidation,
	CodeNotFound:       KindValidation,

	CodeInvalidCredentials:     KindAuthentication,
	CodeInvalidOTP:             KindAuthentication,
	CodeInvalidBackupCode:      KindAuthentication,
	CodeBackupCodeAlreadyUsed:  KindAuthentication,
	CodeInvalidIdentity:        KindAuthentication,
	CodeInvalidTelegramAccount: KindAuthentication,
	CodeInvalidToken:           KindAuthentication,

	CodeSessionExpired:           KindState,
	CodeMFAHasBeenSetup:          KindState,
	CodeMFANotEnabled:            KindState,
	CodeTelegramAccountWasLinked: KindState,
	CodeIdentityConflict:         KindState,
	CodeAlreadyExists:            KindState,

	CodeSuspiciousLoginBlocked: KindPolicy,
	CodeTooManyAttempts:        KindPolicy,
	CodeForbidden:              KindPolicy,
	CodeRateLimitExceeded:      KindPolicy,

	CodeProviderUnavailable: KindUpstream,
}

// KindOf returns the kind of an error code. Unknown codes are server errors.
func KindOf(code string) ErrorKind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindServer
}

// StatusOf returns the HTTP status the server uses for code.
func StatusOf(code string) int {
	switch code {
	case CodeTooManyAttempts, CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	}

	switch KindOf(code) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindState:
		return http.StatusConflict
	case KindPolicy:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// APIError is an error response from the auth service.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Kind classifies the error.
func (e *APIError) Kind() ErrorKind { return KindOf(e.Code) }

// Is matches on code, so errors.Is(err, ErrTooManyAttempts) works for any
// response carrying that code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newAPIError(code string) *APIError {
	return &APIError{StatusCode: StatusOf(code), Code: code}
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials     = newAPIError(CodeInvalidCredentials)
	ErrInvalidToken           = newAPIError(CodeInvalidToken)
	ErrInvalidOTP             = newAPIError(CodeInvalidOTP)
	ErrInvalidBackupCode      = newAPIError(CodeInvalidBackupCode)
	ErrBackupCodeAlreadyUsed  = newAPIError(CodeBackupCodeAlreadyUsed)
	ErrSessionExpired         = newAPIError(CodeSessionExpired)
	ErrMFAHasBeenSetup        = newAPIError(CodeMFAHasBeenSetup)
	ErrMFANotEnabled          = newAPIError(CodeMFANotEnabled)
	ErrSuspiciousLoginBlocked = newAPIError(CodeSuspiciousLoginBlocked)
	ErrTooManyAttempts        = newAPIError(CodeTooManyAttempts)
	ErrProviderUnavailable    = newAPIError(CodeProviderUnavailable)
)

// KindOfError classifies any error. Transport failures that never produced
// a response are reported as upstream.
func KindOfError(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return KindUpstream
}

// CodeOfError returns the wire code of err, or "" for non-API errors.
func CodeOfError(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        CodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
