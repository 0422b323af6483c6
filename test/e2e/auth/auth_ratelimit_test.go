package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitLoginEndpoint verifies that the login endpoint is rate limited
// by IP. The strict profile allows a burst of 10.
func TestRateLimitLoginEndpoint(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)
	ctx := t.Context()

	for i := range 10 {
		_, err := client.Login(ctx, "nobody@example.com", "wrong")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials, "request %d should not be rate limited yet", i+1)
	}

	_, err := client.Login(ctx, "nobody@example.com", "wrong")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.CodeRateLimitExceeded, apiErr.Code)
}

// TestRateLimitSkipsHealth verifies health probes use the public profile.
func TestRateLimitSkipsHealth(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)

	for range 50 {
		health, err := client.Livez(t.Context())
		assertHealthy(t, health, err)
	}
}
