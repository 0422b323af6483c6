package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLivezEndpoint verifies the liveness check endpoint works before bootstrap.
func TestLivezEndpoint(t *testing.T) {
	client := setupAuthContainer(t)

	health, err := client.Livez(t.Context())
	assertHealthy(t, health, err)
}

// TestReadyzEndpoint verifies every dependency reports ready.
func TestReadyzEndpoint(t *testing.T) {
	client := setupAuthContainer(t)

	health, err := client.Readyz(t.Context())
	assertHealthy(t, health, err)
	require.Equal(t, map[string]string{"database": "ok", "cache": "ok", "signer": "ok"}, health.Checks)
}

// TestJWKSEndpoint verifies the session signing key is published.
func TestJWKSEndpoint(t *testing.T) {
	client := setupAuthContainer(t)

	jwks, err := client.JWKS(t.Context())
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "EdDSA", jwks.Keys[0].Alg)

	keyJSON, _ := json.Marshal(jwks.Keys[0])
	t.Logf("Key JSON: %s", keyJSON)
}
