package httpx

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// Authenticator resolves a bearer token into a live principal. Implementations
// must consult the server-side session so revocation takes effect.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (Principal, error)
}

// AuthnMiddleware rejects requests without a valid session token.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			p, err := a.Authenticate(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Debug("bearer rejected", "err", err)
				writeBearerError(w, "session is not valid")
				return
			}

			ctx = slogx.With(WithPrincipal(ctx, p), "user_id", p.UserID, "sid", p.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the principal holds one of roles.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !slices.Contains(roles, p.Role) {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
