package provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.example.com"

type jwksServer struct {
	*httptest.Server
	key   *rsa.PrivateKey
	hits  atomic.Int32
	delay time.Duration
	fail  atomic.Bool
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s := &jwksServer{key: key}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		if s.fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewRSAJWK("k1", &key.PublicKey)}})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) token(t *testing.T, kid, aud string, exp time.Time) string {
	t.Helper()

	claims := jwtx.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-sub-1",
			Audience:  jwt.ClaimStrings{aud},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func newTestOIDC(s *jwksServer, timeout time.Duration) *OIDCVerifier {
	return NewOIDCVerifier(OIDCConfig{
		Name:     "google",
		JWKSURL:  s.URL,
		ClientID: testClientID,
		Issuers:  googleIssuers,
		Timeout:  timeout,
	})
}

func TestOIDCVerify(t *testing.T) {
	ctx := context.Background()
	srv := newJWKSServer(t)
	v := newTestOIDC(srv, time.Second)

	a, err := v.Verify(ctx, srv.token(t, "k1", testClientID, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, "google", a.Provider)
	require.Equal(t, "google-sub-1", a.Subject)
	require.Equal(t, "alice@example.com", a.Email)
	require.True(t, a.EmailVerified)

	// Keys are cached.
	_, err = v.Verify(ctx, srv.token(t, "k1", testClientID, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.hits.Load())
}

func TestOIDCRejectsBadAssertions(t *testing.T) {
	ctx := context.Background()
	srv := newJWKSServer(t)
	v := newTestOIDC(srv, time.Second)

	cases := map[string]string{
		"wrong audience": srv.token(t, "k1", "someone-else", time.Now().Add(time.Hour)),
		"expired":        srv.token(t, "k1", testClientID, time.Now().Add(-time.Hour)),
		"unknown kid":    srv.token(t, "k2", testClientID, time.Now().Add(time.Hour)),
		"garbage":        "not.a.jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, tok)
			require.ErrorIs(t, err, ErrInvalidAssertion)
		})
	}
}

func TestOIDCUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("server error", func(t *testing.T) {
		srv := newJWKSServer(t)
		srv.fail.Store(true)
		v := newTestOIDC(srv, time.Second)

		_, err := v.Verify(ctx, srv.token(t, "k1", testClientID, time.Now().Add(time.Hour)))
		require.ErrorIs(t, err, ErrUnavailable)
		require.NotErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := newJWKSServer(t)
		srv.delay = 200 * time.Millisecond
		v := newTestOIDC(srv, 20*time.Millisecond)

		_, err := v.Verify(ctx, srv.token(t, "k1", testClientID, time.Now().Add(time.Hour)))
		require.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestOIDCRefreshesStaleKeys(t *testing.T) {
	ctx := context.Background()
	srv := newJWKSServer(t)
	v := newTestOIDC(srv, time.Second)

	now := time.Now()
	v.now = func() time.Time { return now }

	tok := srv.token(t, "k1", testClientID, time.Now().Add(time.Hour))
	_, err := v.Verify(ctx, tok)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = v.Verify(ctx, tok)
	require.NoError(t, err)
	require.EqualValues(t, 2, srv.hits.Load())

	// A provider outage after the cache went stale is reported, not hidden.
	now = now.Add(2 * time.Hour)
	srv.fail.Store(true)
	_, err = v.Verify(ctx, tok)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewTelegramVerifier("bot", time.Minute), nil)

	v, err := r.Get("telegram")
	require.NoError(t, err)
	require.Equal(t, "telegram", v.Name())

	_, err = r.Get("google")
	require.ErrorIs(t, err, ErrUnsupported)
}
