package domain

import "time"

// Device is the request metadata recorded with sessions and audit entries.
type Device struct {
	IP        string
	UserAgent string
}

// Session is the server-side record behind a session token. It is the source
// of truth for whether a token may still be used.
type Session struct {
	ID        string
	UserID    string
	IP        string
	UserAgent string
	AMR       []string // Authentication Method References
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// ActiveAt reports whether the session authorizes requests at now.
func (s Session) ActiveAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// IssuedSession is a freshly created session together with its signed token.
type IssuedSession struct {
	Session     Session
	AccessToken string
}

// SessionFilter scopes session listings.
type SessionFilter struct {
	UserID     string // empty with AllUsers false means "the caller"
	AllUsers   bool
	ActiveOnly bool
}
