package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator map[string]httpx.Principal

func (s stubAuthenticator) Authenticate(_ context.Context, bearer string) (httpx.Principal, error) {
	p, ok := s[bearer]
	if !ok {
		return httpx.Principal{}, errors.New("revoked")
	}
	return p, nil
}

func TestAuthnMiddleware(t *testing.T) {
	auth := stubAuthenticator{"good": {UserID: "u1", SessionID: "s1", Role: "user"}}

	var got httpx.Principal
	h := httpx.AuthnMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.PrincipalFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"rejected token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
		{"scheme is case-insensitive", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				require.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer"))
				require.Contains(t, rec.Body.String(), "invalid_token")
			}
		})
	}
	require.Equal(t, "u1", got.UserID)
}

func TestRequireRole(t *testing.T) {
	h := httpx.Chain(okHandler, httpx.RequireRole("admin"))

	serve := func(p *httpx.Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/users", nil)
		if p != nil {
			req = req.WithContext(httpx.WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(nil))
	require.Equal(t, http.StatusForbidden, serve(&httpx.Principal{UserID: "u", Role: "user"}))
	require.Equal(t, http.StatusOK, serve(&httpx.Principal{UserID: "a", Role: "admin"}))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	httpx.Chain(okHandler, mark("outer"), mark("inner")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	decode := func(payload string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		var b body
		return httpx.DecodeJSON(httptest.NewRecorder(), req, &b)
	}

	require.NoError(t, decode(`{"name":"a"}`))
	require.Error(t, decode(`{"name":"a","extra":1}`))
	require.Error(t, decode(`{"name":"a"}{"name":"b"}`))
	require.Error(t, decode(`not json`))
}
