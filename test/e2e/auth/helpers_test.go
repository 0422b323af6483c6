package auth_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * The suite needs Docker and only runs with PURSE_E2E=1.
 */

const (
	testImageName = "purse-auth-test:latest"

	bootstrapToken = "test-bootstrap-token-12345"
	adminEmail     = "admin@example.com"
	adminPassword  = "Admin123!"
)

var e2eEnabled = os.Getenv("PURSE_E2E") == "1"

// TestMain builds the Docker image once before all tests and removes it
// after all tests complete.
func TestMain(m *testing.M) {
	if !e2eEnabled {
		os.Exit(m.Run())
	}

	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// relaxedRateLimits keeps tests that make many rapid requests clear of the
// strict production limits.
var relaxedRateLimits = map[string]string{
	"RATELIMIT_STRICT_REQUESTS":   "1000",
	"RATELIMIT_STRICT_WINDOW_SEC": "60",
	"RATELIMIT_STRICT_BURST":      "1000",
	"RATELIMIT_MODERATE_REQUESTS": "1000",
	"RATELIMIT_MODERATE_BURST":    "1000",
}

// setupAuthContainer starts the auth service with relaxed rate limits and
// returns a client for it.
func setupAuthContainer(t *testing.T) *authsdk.Client {
	t.Helper()
	return startContainer(t, relaxedRateLimits)
}

// setupAuthContainerWithDefaultRateLimits starts the auth service with the
// production limits, for tests of the limiter itself.
func setupAuthContainerWithDefaultRateLimits(t *testing.T) *authsdk.Client {
	t.Helper()
	return startContainer(t, nil)
}

func startContainer(t *testing.T, extraEnv map[string]string) *authsdk.Client {
	t.Helper()
	if !e2eEnabled {
		t.Skip("set PURSE_E2E=1 to run end-to-end tests")
	}
	ctx := context.Background()

	env := map[string]string{
		"BOOTSTRAP_TOKEN":       bootstrapToken,
		"AUTH_DATABASE_FILE":    "/data/auth.db",
		"AUTH_PEPPER_FILE":      "/data/pepper",
		"AUTH_SIGNING_KEY_FILE": "/data/signing.pem",
		"AUTH_ISSUER":           "purse-e2e",
		"MFA_MAX_ATTEMPTS":      "3",
		"ENV":                   "test",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/readyz").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return authsdk.NewClient(fmt.Sprintf("http://%s:%s", host, mappedPort.Port()))
}

// bootstrapAdmin creates the first admin and returns a signed-in session.
func bootstrapAdmin(t *testing.T, client *authsdk.Client) *authsdk.Session {
	t.Helper()

	admin, err := client.Bootstrap(t.Context(), authsdk.BootstrapRequest{
		Token:    bootstrapToken,
		Email:    adminEmail,
		Password: adminPassword,
	})
	require.NoError(t, err, "Bootstrap should succeed")
	require.Equal(t, "admin", admin.Role)

	return mustLogin(t, client, adminEmail, adminPassword)
}

// createUser creates a password user through the admin API.
func createUser(t *testing.T, admin *authsdk.Session, email, password string) *authsdk.UserResponse {
	t.Helper()

	u, err := admin.CreateUser(t.Context(), authsdk.CreateUserRequest{Email: email, Password: password})
	require.NoError(t, err)
	return u
}

// mustLogin performs a password login that must complete without MFA.
func mustLogin(t *testing.T, client *authsdk.Client, email, password string) *authsdk.Session {
	t.Helper()

	resp, err := client.Login(t.Context(), email, password)
	require.NoError(t, err, "Login should succeed")
	require.Equal(t, authsdk.OutcomeCompleted, resp.Outcome)
	require.NotNil(t, resp.Session)

	return client.WithToken(resp.Session.AccessToken)
}

// enrollMFA enables MFA for a signed-in user and returns the TOTP secret and
// the backup codes.
func enrollMFA(t *testing.T, client *authsdk.Client, session *authsdk.Session) (string, []string) {
	t.Helper()
	ctx := t.Context()

	setupToken, err := session.StartMFASetup(ctx)
	require.NoError(t, err)
	secret, err := session.TOTPSecret(ctx, setupToken)
	require.NoError(t, err)

	confirmed, err := client.ConfirmMFASetup(ctx, setupToken, generateTOTP(t, secret.Secret))
	require.NoError(t, err)
	require.Len(t, confirmed.BackupCodes, 10)

	return secret.Secret, confirmed.BackupCodes
}

func generateTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
