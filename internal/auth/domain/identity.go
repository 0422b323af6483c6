package domain

import "time"

// Identity providers.
const (
	ProviderGoogle   = "google"
	ProviderTelegram = "telegram"
)

// Identity links a local user to an account at an external provider.
// (provider, subject) and (user_id, provider) are both unique.
type Identity struct {
	ID        string
	UserID    string
	Provider  string
	Subject   string // stable provider-side user id
	Email     string
	CreatedAt time.Time
}

// Assertion is what a provider verifier extracts from a signed login proof.
type Assertion struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
