package jwtx

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrInvalidType = errors.New("jwtx: invalid key type")
)

// Verifier validates a session token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// SessionVerifier validates EdDSA session tokens against a KeySet.
type SessionVerifier struct {
	keys   *KeySet
	issuer string
}

// NewSessionVerifier creates a verifier for tokens minted by issuer.
func NewSessionVerifier(keys *KeySet, issuer string) *SessionVerifier {
	return &SessionVerifier{keys: keys, issuer: issuer}
}

func (v *SessionVerifier) Verify(token string) (Claims, error) {
	var claims Claims
	if err := parse(token, &claims, v.keys, jwt.SigningMethodEdDSA.Alg()); err != nil {
		return Claims{}, err
	}
	if err := validateIssuer(claims.Issuer, []string{v.issuer}); err != nil {
		return Claims{}, err
	}
	if claims.SID == "" || claims.Subject == "" {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// IdentityVerifier validates RS256 ID tokens issued by an external provider.
type IdentityVerifier struct {
	issuers  []string
	audience string
}

// NewIdentityVerifier accepts any of issuers and requires audience in aud.
func NewIdentityVerifier(audience string, issuers ...string) *IdentityVerifier {
	return &IdentityVerifier{issuers: issuers, audience: audience}
}

// Verify checks the token against keys. Keys are passed per call because
// provider key sets rotate underneath the verifier.
func (v *IdentityVerifier) Verify(token string, keys *KeySet) (IdentityClaims, error) {
	var opts []jwt.ParserOption
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims IdentityClaims
	if err := parse(token, &claims, keys, jwt.SigningMethodRS256.Alg(), opts...); err != nil {
		return IdentityClaims{}, err
	}
	if err := validateIssuer(claims.Issuer, v.issuers); err != nil {
		return IdentityClaims{}, err
	}
	if claims.Subject == "" {
		return IdentityClaims{}, ErrMalformed
	}
	return claims, nil
}

// KeyID returns the kid header of a token without verifying it.
func KeyID(token string) (string, error) {
	t, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kid, _ := t.Header["kid"].(string)
	return kid, nil
}

func parse(token string, claims jwt.Claims, keys *KeySet, alg string, opts ...jwt.ParserOption) error {
	opts = append(opts, jwt.WithValidMethods([]string{alg}), jwt.WithExpirationRequired())
	parser := jwt.NewParser(opts...)

	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		switch alg {
		case jwt.SigningMethodEdDSA.Alg():
			if k, ok := pub.(ed25519.PublicKey); ok {
				return k, nil
			}
		case jwt.SigningMethodRS256.Alg():
			if k, ok := pub.(*rsa.PublicKey); ok {
				return k, nil
			}
		}
		return nil, ErrInvalidType
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("jwtx: parse or verify: %w", err)
	}
}
