package service

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

// TOTPKey is a freshly generated authenticator secret.
type TOTPKey struct {
	Secret string // base32
	URL    string // otpauth:// provisioning URI
}

// TOTPEngine generates and checks RFC 6238 codes. It holds no per-user
// state; the secret is always passed in.
type TOTPEngine struct {
	Issuer string

	now func() time.Time
}

func NewTOTPEngine(issuer string) *TOTPEngine {
	return &TOTPEngine{Issuer: issuer, now: time.Now}
}

// Generate creates a new secret for account.
func (e *TOTPEngine) Generate(account string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// Validate accepts the code for the current step and one step either side.
func (e *TOTPEngine) Validate(code, secret string) bool {
	if len(code) != 6 || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.clock().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (e *TOTPEngine) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}
