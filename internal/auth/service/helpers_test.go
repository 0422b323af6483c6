package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testIssuer = "purse-test"

var device = domain.Device{IP: "203.0.113.7", UserAgent: "service-test"}

// recorder is a synchronous Auditor.
type recorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recorder) Record(_ context.Context, e domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) byType(typ string) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	store    *sqlite.Store
	cache    cache.Store
	audit    *recorder
	hasher   *cryptox.Hasher
	monitor  *service.FailureMonitor
	settings *service.SettingsService

	users      *service.UserService
	sessions   *service.SessionService
	setup      *service.SetupService
	challenges *service.ChallengeService
	logins     *service.CredentialService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pemKey)
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(signer.PublicJWK()))

	hasher, err := cryptox.NewHasher("test-pepper")
	require.NoError(t, err)

	h := &harness{
		store:  st,
		cache:  cache.NewMemoryStore(1024),
		audit:  &recorder{},
		hasher: hasher,
	}
	h.monitor = &service.FailureMonitor{Cache: h.cache, Window: time.Minute}
	h.settings = &service.SettingsService{Store: st, Auditor: h.audit}

	totpEngine := service.NewTOTPEngine(testIssuer)
	vault := &service.BackupCodeVault{}
	enrollments := &service.Enrollments{Cache: h.cache, TTL: time.Minute}

	h.users = &service.UserService{Store: st, Hasher: hasher, Auditor: h.audit}
	h.sessions = service.NewSessionService(service.SessionConfig{
		Store:    st,
		Signer:   signer,
		Verifier: jwtx.NewSessionVerifier(keys, testIssuer),
		Auditor:  h.audit,
		Issuer:   testIssuer,
		TTL:      time.Hour,
	})
	h.challenges = &service.ChallengeService{
		Store:       st,
		Cache:       h.cache,
		TOTP:        totpEngine,
		Vault:       vault,
		Sessions:    h.sessions,
		Enrollments: enrollments,
		Auditor:     h.audit,
		MaxAttempts: 3,
	}
	h.setup = &service.SetupService{
		Store:       st,
		Cache:       h.cache,
		TOTP:        totpEngine,
		Vault:       vault,
		Sessions:    h.sessions,
		Challenges:  h.challenges,
		Enrollments: enrollments,
		Auditor:     h.audit,
	}
	h.logins = &service.CredentialService{
		Store:       st,
		Hasher:      hasher,
		Monitor:     h.monitor,
		Sessions:    h.sessions,
		Challenges:  h.challenges,
		Enrollments: enrollments,
		Auditor:     h.audit,
	}
	return h
}

func (h *harness) createUser(t *testing.T, email, password string) domain.User {
	t.Helper()
	u, err := h.users.CreateUser(context.Background(), "", service.NewUser{Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func (h *harness) login(t *testing.T, identifier, password string) service.LoginResult {
	t.Helper()
	res, err := h.logins.Login(context.Background(), service.Credentials{Identifier: identifier, Password: password}, device)
	require.NoError(t, err)
	return res
}

// enableMFA enrolls user through the signed-in setup flow and returns the
// TOTP secret and backup codes.
func (h *harness) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	token, err := h.setup.RequestSetup(ctx, userID, "")
	require.NoError(t, err)
	secret, err := h.setup.TOTPSecret(ctx, userID, token)
	require.NoError(t, err)

	res, err := h.setup.ConfirmSetup(ctx, token, code(t, secret.Secret))
	require.NoError(t, err)
	require.Len(t, res.BackupCodes, 10)
	return secret.Secret, res.BackupCodes
}

func (h *harness) activeSessions(t *testing.T, userID string) []domain.Session {
	t.Helper()
	sessions, err := h.store.Sessions().ListSessions(context.Background(), domain.SessionFilter{UserID: userID, ActiveOnly: true})
	require.NoError(t, err)
	return sessions
}

func code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return c
}

// wrongCode returns a six digit code that is not valid for secret right now.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	for _, c := range []string{"000000", "111111", "222222"} {
		if ok, _ := totp.ValidateCustom(c, secret, time.Now(), totp.ValidateOpts{Period: 30, Skew: 1, Digits: 6}); !ok {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}
