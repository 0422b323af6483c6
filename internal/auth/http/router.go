package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"

	_ "github.com/aussiebroadwan/purse/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       httpx.RateLimitProfiles

	store   store.Store
	cache   cache.Store
	metrics *telemetry.Metrics

	SessionService    *service.SessionService
	CredentialService *service.CredentialService
	SetupService      *service.SetupService
	ChallengeService  *service.ChallengeService
	IdentityService   *service.IdentityService
	UserService       *service.UserService
	SettingsService   *service.SettingsService
	BootstrapService  *service.BootstrapService
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	c cache.Store,
	metrics *telemetry.Metrics,
	limits httpx.RateLimitProfiles,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		limits:       limits,
		store:        st,
		cache:        c,
		metrics:      metrics,
	}

	// Metrics must wrap the mux directly to see the matched pattern.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		withDevice,
		r.metrics.Middleware,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerMFA()
	r.registerSessions()
	r.registerIdentities()
	r.registerAdmin()
	r.registerBootstrap()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Purse Authentication Service API
//	@version		0.1.0
//	@description	Password and provider logins with TOTP multi-factor authentication and server-side sessions.
//	@description
//	@description				Session tokens are EdDSA-signed JWTs; verify them with the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/purse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authenticated wraps h for routes that need a live session.
func (r *Router) authenticated(h http.HandlerFunc, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{
		httpx.AuthnMiddleware(r.SessionService),
		httpx.RateLimitByUser(r.limits.Moderate),
	}, mws...)
	return httpx.Chain(h, chain...)
}

// public wraps h for unauthenticated credential and MFA endpoints.
func (r *Router) public(h http.Handler) http.Handler {
	return httpx.Chain(h, httpx.RateLimitByIP(r.limits.Strict))
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		Logins:     r.CredentialService,
		Identities: r.IdentityService,
	}

	r.Mux.Handle("POST /v1/auth/login", r.public(http.HandlerFunc(h.HandleLogin)))
	r.Mux.Handle("POST /v1/auth/providers/{provider}", r.public(http.HandlerFunc(h.HandleProviderLogin)))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		Setup:      r.SetupService,
		Challenges: r.ChallengeService,
	}

	// Login steps - strict rate limit by IP (OTP and backup code guessing)
	r.Mux.Handle("POST /v1/auth/mfa/setup", r.public(http.HandlerFunc(h.HandleRequestSetup)))
	r.Mux.Handle("POST /v1/auth/mfa/setup/confirm", r.public(http.HandlerFunc(h.HandleConfirmSetup)))
	r.Mux.Handle("POST /v1/auth/mfa/otp", r.public(http.HandlerFunc(h.HandleOTP)))
	r.Mux.Handle("POST /v1/auth/mfa/confirm", r.public(http.HandlerFunc(h.HandleConfirmLogin)))
	r.Mux.Handle("POST /v1/auth/mfa/backup", r.public(http.HandlerFunc(h.HandleBackup)))

	// Account management - moderate rate limit by user
	r.Mux.Handle("POST /v1/mfa/setup", r.authenticated(h.HandleStartSetup))
	r.Mux.Handle("GET /v1/mfa/setup/{token}/secret", r.authenticated(h.HandleSecret))
	r.Mux.Handle("POST /v1/mfa/disable", r.authenticated(h.HandleDisable))
	r.Mux.Handle("POST /v1/mfa/reset", r.authenticated(h.HandleReset))
	r.Mux.Handle("POST /v1/mfa/backup-codes", r.authenticated(h.HandleRegenerateBackupCodes))
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.SessionService}

	r.Mux.Handle("POST /v1/auth/logout", r.authenticated(h.HandleLogout))
	r.Mux.Handle("POST /v1/auth/logout-all", r.authenticated(h.HandleLogoutAll))
	r.Mux.Handle("GET /v1/sessions", r.authenticated(h.HandleList))
	r.Mux.Handle("POST /v1/sessions/revoke", r.authenticated(h.HandleRevoke))
}

func (r *Router) registerIdentities() {
	h := &IdentitiesHandler{Identities: r.IdentityService}

	r.Mux.Handle("GET /v1/identities", r.authenticated(h.HandleList))
	r.Mux.Handle("POST /v1/identities/telegram", r.authenticated(h.HandleLinkTelegram))
}

func (r *Router) registerAdmin() {
	users := &UsersHandler{Users: r.UserService}
	settings := &SettingsHandler{Settings: r.SettingsService}
	admin := httpx.RequireRole(domain.RoleAdmin)

	r.Mux.Handle("POST /v1/users", r.authenticated(users.HandleCreate, admin))
	r.Mux.Handle("GET /v1/settings/{key}", r.authenticated(settings.HandleGet, admin))
	r.Mux.Handle("PUT /v1/settings/{key}", r.authenticated(settings.HandlePut, admin))
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap", r.public(bootstrapHandler))
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache, r.keys),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(r.limits.Public),
		),
	)
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}

// withDevice records the client address and user agent for audit entries.
func withDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(service.WithDevice(r.Context(), deviceOf(r))))
	})
}
