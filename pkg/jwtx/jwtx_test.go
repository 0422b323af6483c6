package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, kid string) (*jwtx.EdDSASigner, *jwtx.KeySet) {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(signer.PublicJWK()))
	return signer, keys
}

func TestSessionTokenRoundTrip(t *testing.T) {
	signer, keys := newSigner(t, "k1")
	now := time.Now()

	claims := jwtx.NewSessionClaims("purse", "user-1", "sess-1", "admin",
		[]string{jwtx.AMRPassword, jwtx.AMROTP}, now, now.Add(time.Hour))
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := jwtx.NewSessionVerifier(keys, "purse").Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "sess-1", got.SID)
	require.Equal(t, "admin", got.Role)
	require.True(t, got.HasAMR(jwtx.AMROTP))
	require.False(t, got.HasAMR(jwtx.AMRBackup))
}

func TestSessionVerifierRejects(t *testing.T) {
	signer, keys := newSigner(t, "k1")
	other, _ := newSigner(t, "k2")
	now := time.Now()

	t.Run("expired", func(t *testing.T) {
		token, err := signer.Sign(jwtx.NewSessionClaims("purse", "u", "s", "user", nil,
			now.Add(-2*time.Hour), now.Add(-time.Hour)))
		require.NoError(t, err)

		_, err = jwtx.NewSessionVerifier(keys, "purse").Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := signer.Sign(jwtx.NewSessionClaims("elsewhere", "u", "s", "user", nil, now, now.Add(time.Hour)))
		require.NoError(t, err)

		_, err = jwtx.NewSessionVerifier(keys, "purse").Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("unknown key", func(t *testing.T) {
		token, err := other.Sign(jwtx.NewSessionClaims("purse", "u", "s", "user", nil, now, now.Add(time.Hour)))
		require.NoError(t, err)

		_, err = jwtx.NewSessionVerifier(keys, "purse").Verify(token)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("missing sid", func(t *testing.T) {
		token, err := signer.Sign(jwtx.NewSessionClaims("purse", "u", "", "user", nil, now, now.Add(time.Hour)))
		require.NoError(t, err)

		_, err = jwtx.NewSessionVerifier(keys, "purse").Verify(token)
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwtx.NewSessionVerifier(keys, "purse").Verify("not.a.jwt")
		require.Error(t, err)
	})
}

func TestIdentityVerifier(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{
		jwtx.NewRSAJWK("rsa-1", &priv.PublicKey),
		{Kty: "EC", Kid: "ignored", Crv: "P-256"},
	}}))

	sign := func(iss, aud string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwtx.IdentityClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    iss,
				Subject:   "google-123",
				Audience:  jwt.ClaimStrings{aud},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Email:         "alice@example.com",
			EmailVerified: true,
		})
		tok.Header["kid"] = "rsa-1"
		s, err := tok.SignedString(priv)
		require.NoError(t, err)
		return s
	}

	v := jwtx.NewIdentityVerifier("client-id", "https://accounts.google.com", "accounts.google.com")

	claims, err := v.Verify(sign("accounts.google.com", "client-id"), keys)
	require.NoError(t, err)
	require.Equal(t, "google-123", claims.Subject)
	require.True(t, claims.EmailVerified)

	_, err = v.Verify(sign("https://evil.example", "client-id"), keys)
	require.ErrorIs(t, err, jwtx.ErrIssuer)

	_, err = v.Verify(sign("accounts.google.com", "other-client"), keys)
	require.Error(t, err)

	kid, err := jwtx.KeyID(sign("accounts.google.com", "client-id"))
	require.NoError(t, err)
	require.Equal(t, "rsa-1", kid)
}

func TestKeySetResetRejectsEmpty(t *testing.T) {
	keys := jwtx.NewKeySet()
	require.ErrorIs(t, keys.ResetFromJWKS(jwtx.JWKS{}), jwtx.ErrNoKey)
	require.False(t, keys.IsReady())
}
