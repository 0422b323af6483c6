package httpx

import "context"

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Principal is the authenticated caller behind a session token.
type Principal struct {
	UserID    string
	SessionID string
	Role      string
	AMR       []string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal installed by AuthnMiddleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
