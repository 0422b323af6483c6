package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

const (
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultKeysTTL    = time.Hour
	minRefreshBackoff = 30 * time.Second
)

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// OIDCConfig configures an OIDCVerifier.
type OIDCConfig struct {
	Name     string
	JWKSURL  string
	ClientID string // required audience
	Issuers  []string

	// Timeout bounds every key set fetch. Zero means 5s.
	Timeout time.Duration

	// KeysTTL is how long a fetched key set is trusted. Zero means 1h.
	KeysTTL time.Duration

	HTTPClient *http.Client
}

// OIDCVerifier verifies RS256 ID tokens against a remote JWKS. Keys are
// cached and refetched when stale or when a token names an unknown kid.
type OIDCVerifier struct {
	name     string
	jwksURL  string
	keysTTL  time.Duration
	timeout  time.Duration
	client   *http.Client
	verifier *jwtx.IdentityVerifier
	now      func() time.Time

	mu        sync.Mutex
	keys      *jwtx.KeySet
	fetchedAt time.Time
}

func NewOIDCVerifier(cfg OIDCConfig) *OIDCVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.KeysTTL
	if ttl <= 0 {
		ttl = defaultKeysTTL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &OIDCVerifier{
		name:     cfg.Name,
		jwksURL:  cfg.JWKSURL,
		keysTTL:  ttl,
		timeout:  timeout,
		client:   client,
		verifier: jwtx.NewIdentityVerifier(cfg.ClientID, cfg.Issuers...),
		now:      time.Now,
	}
}

// NewGoogleVerifier verifies Google Sign-In ID tokens minted for clientID.
func NewGoogleVerifier(clientID string, timeout time.Duration) *OIDCVerifier {
	return NewOIDCVerifier(OIDCConfig{
		Name:     domain.ProviderGoogle,
		JWKSURL:  GoogleJWKSURL,
		ClientID: clientID,
		Issuers:  googleIssuers,
		Timeout:  timeout,
	})
}

func (v *OIDCVerifier) Name() string { return v.name }

func (v *OIDCVerifier) Verify(ctx context.Context, assertion string) (domain.Assertion, error) {
	kid, err := jwtx.KeyID(assertion)
	if err != nil || kid == "" {
		return domain.Assertion{}, fmt.Errorf("%w: missing kid", ErrInvalidAssertion)
	}

	keys, err := v.keySet(ctx, kid)
	if err != nil {
		return domain.Assertion{}, err
	}

	claims, err := v.verifier.Verify(assertion, keys)
	if err != nil {
		return domain.Assertion{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	return domain.Assertion{
		Provider:      v.name,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}

// keySet returns cached keys, refreshing them when stale or when kid is
// unknown. Unknown-kid refreshes are throttled so garbage tokens cannot
// turn into a fetch per request.
func (v *OIDCVerifier) keySet(ctx context.Context, kid string) (*jwtx.KeySet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	stale := v.keys == nil || now.Sub(v.fetchedAt) > v.keysTTL
	if !stale {
		if _, err := v.keys.Get(kid); err == nil {
			return v.keys, nil
		}
		if now.Sub(v.fetchedAt) < minRefreshBackoff {
			return v.keys, nil
		}
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		if v.keys != nil && !stale {
			return v.keys, nil
		}
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = now
	return keys, nil
}

func (v *OIDCVerifier) fetch(ctx context.Context) (*jwtx.KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks status %d", ErrUnavailable, resp.StatusCode)
	}

	var jwks jwtx.JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %v", ErrUnavailable, err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.ResetFromJWKS(jwks); err != nil {
		if errors.Is(err, jwtx.ErrNoKey) {
			return nil, fmt.Errorf("%w: jwks has no usable keys", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}
