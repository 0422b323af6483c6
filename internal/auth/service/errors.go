package service

import (
	"errors"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
)

// Error is a domain error with a stable wire code. The values below are
// sentinels: match them with errors.Is, wrap them with fmt.Errorf("%w").
type Error struct {
	Kind    authsdk.ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code, message string) *Error {
	return &Error{Kind: authsdk.KindOf(code), Code: code, Message: message}
}

var (
	ErrInvalidRequest = newError(authsdk.CodeInvalidRequest, "invalid request")
	ErrNotFound       = newError(authsdk.CodeNotFound, "not found")

	ErrInvalidCredentials     = newError(authsdk.CodeInvalidCredentials, "invalid credentials")
	ErrInvalidOTP             = newError(authsdk.CodeInvalidOTP, "invalid one-time password")
	ErrInvalidBackupCode      = newError(authsdk.CodeInvalidBackupCode, "invalid backup code")
	ErrBackupCodeAlreadyUsed  = newError(authsdk.CodeBackupCodeAlreadyUsed, "backup code has already been used")
	ErrInvalidIdentity        = newError(authsdk.CodeInvalidIdentity, "identity assertion rejected")
	ErrInvalidTelegramAccount = newError(authsdk.CodeInvalidTelegramAccount, "telegram login data is invalid")
	ErrInvalidToken           = newError(authsdk.CodeInvalidToken, "invalid or expired session")

	ErrSessionExpired           = newError(authsdk.CodeSessionExpired, "session expired, start again")
	ErrMFAHasBeenSetup          = newError(authsdk.CodeMFAHasBeenSetup, "MFA is already enabled")
	ErrMFANotEnabled            = newError(authsdk.CodeMFANotEnabled, "MFA is not enabled")
	ErrTelegramAccountWasLinked = newError(authsdk.CodeTelegramAccountWasLinked, "telegram account is already linked")
	ErrIdentityConflict         = newError(authsdk.CodeIdentityConflict, "email belongs to an account linked to another identity")
	ErrAlreadyExists            = newError(authsdk.CodeAlreadyExists, "already exists")

	ErrSuspiciousLoginBlocked = newError(authsdk.CodeSuspiciousLoginBlocked, "login blocked")
	ErrTooManyAttempts        = newError(authsdk.CodeTooManyAttempts, "too many attempts")
	ErrForbidden              = newError(authsdk.CodeForbidden, "forbidden")

	ErrProviderUnavailable = newError(authsdk.CodeProviderUnavailable, "identity provider unavailable")
)

// AsError extracts the domain error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
