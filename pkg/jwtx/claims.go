package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication method references carried in the amr claim.
const (
	AMRPassword  = "pwd"
	AMROTP       = "otp"
	AMRBackup    = "backup"
	AMRMFA       = "mfa"
	AMRFederated = "fed"
)

// Claims are the session-token claims. The sid names the server-side session
// row, which stays the source of truth for validity.
type Claims struct {
	jwt.RegisteredClaims

	// Session ID
	SID string `json:"sid"`

	// Authentication Methods Reference ["pwd","otp","mfa"]
	AMR []string `json:"amr,omitempty"`

	// Role of the subject at issuance: "user" or "admin".
	Role string `json:"role,omitempty"`
}

// NewSessionClaims builds claims for a session that ends at expiresAt.
func NewSessionClaims(issuer, subject, sid, role string, amr []string, now, expiresAt time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        NewJTI(),
		},
		SID:  sid,
		AMR:  amr,
		Role: role,
	}
}

// IdentityClaims are the claims read from a third-party ID token.
type IdentityClaims struct {
	jwt.RegisteredClaims

	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasAMR reports whether the method is present in the amr claim.
func (c Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

func validateIssuer(iss string, accepted []string) error {
	if len(accepted) == 0 {
		return nil // nothing to enforce
	}
	if !slices.Contains(accepted, iss) {
		return ErrIssuer
	}
	return nil
}
