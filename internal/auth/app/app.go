package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/audit"
	"github.com/aussiebroadwan/purse/internal/auth/cache"
	httpapi "github.com/aussiebroadwan/purse/internal/auth/http"
	"github.com/aussiebroadwan/purse/internal/auth/provider"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/internal/auth/telemetry"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      *sqlite.Store
	cache   cache.Store
	signer  *jwtx.EdDSASigner
	keys    *jwtx.KeySet
	hasher  *cryptox.Hasher
	auditor *audit.Dispatcher
	metrics *telemetry.Metrics

	// Services
	sessionService      *service.SessionService
	credentialService   *service.CredentialService
	setupService        *service.SetupService
	challengeService    *service.ChallengeService
	identityService     *service.IdentityService
	userService         *service.UserService
	settingsService     *service.SettingsService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "purse-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKeys(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initCache(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	metrics, err := telemetry.New(telemetry.Options{})
	if err != nil {
		_ = app.cache.Close()
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = metrics

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains HTTP, then stops the workers and closes storage. Audit
// entries queued by the last requests are flushed before the database closes.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.auditor.Close()
	if n := app.auditor.Failed(); n > 0 {
		app.logger.Error("audit entries could not be written", "count", n)
	}

	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing cache", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initKeys() error {
	signer, keys, err := InitSigningKey(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize signing key: %w", err)
	}
	app.signer, app.keys = signer, keys

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher, err = cryptox.NewHasher(pepper)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	return nil
}

// initCache picks the backend for setup tokens, challenges and counters.
// Several replicas must share redis, otherwise a challenge started on one
// replica is unknown to the others.
func (app *Application) initCache() error {
	switch app.cfg.CacheDriver {
	case "memory":
		app.cache = cache.NewMemoryStore(app.cfg.CacheSize)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.cache = cache.NewRedisStore(client, "purse:")
	default:
		return fmt.Errorf("unknown cache driver %q", app.cfg.CacheDriver)
	}

	app.logger.Info("cache initialized", "driver", app.cfg.CacheDriver)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.auditor = audit.NewDispatcher(audit.StoreSink{Store: app.db}, app.cfg.AuditBuffer, app.logger)

	totpEngine := service.NewTOTPEngine(app.cfg.Issuer)
	vault := &service.BackupCodeVault{}
	enrollments := &service.Enrollments{Cache: app.cache, TTL: app.cfg.MFASetupTTL}

	app.sessionService = service.NewSessionService(service.SessionConfig{
		Store:    app.db,
		Signer:   app.signer,
		Verifier: jwtx.NewSessionVerifier(app.keys, app.cfg.Issuer),
		Auditor:  app.auditor,
		Metrics:  app.metrics,
		Issuer:   app.cfg.Issuer,
		TTL:      app.cfg.SessionTTL,
		CacheTTL: app.cfg.SessionCacheTTL,
	})

	app.challengeService = &service.ChallengeService{
		Store:       app.db,
		Cache:       app.cache,
		TOTP:        totpEngine,
		Vault:       vault,
		Sessions:    app.sessionService,
		Enrollments: enrollments,
		Auditor:     app.auditor,
		Metrics:     app.metrics,
		TTL:         app.cfg.MFAChallengeTTL,
		MaxAttempts: app.cfg.MFAMaxAttempts,
	}

	app.setupService = &service.SetupService{
		Store:       app.db,
		Cache:       app.cache,
		TOTP:        totpEngine,
		Vault:       vault,
		Sessions:    app.sessionService,
		Challenges:  app.challengeService,
		Enrollments: enrollments,
		Auditor:     app.auditor,
		Metrics:     app.metrics,
		TTL:         app.cfg.MFASetupTTL,
	}

	app.credentialService = &service.CredentialService{
		Store:  app.db,
		Hasher: app.hasher,
		Monitor: &service.FailureMonitor{
			Cache:       app.cache,
			Window:      app.cfg.SecurityWindow,
			StepUpAfter: app.cfg.SecurityStepUpAfter,
			BlockAfter:  app.cfg.SecurityBlockAfter,
		},
		Sessions:    app.sessionService,
		Challenges:  app.challengeService,
		Enrollments: enrollments,
		Auditor:     app.auditor,
		Metrics:     app.metrics,
	}

	app.identityService = &service.IdentityService{
		Store:     app.db,
		Providers: app.initProviders(),
		Logins:    app.credentialService,
		Auditor:   app.auditor,
		Metrics:   app.metrics,
		Timeout:   app.cfg.ProviderTimeout,
	}
	if app.cfg.TelegramBotToken != "" {
		app.identityService.Telegram = provider.NewTelegramVerifier(app.cfg.TelegramBotToken, app.cfg.TelegramMaxAge)
	}

	app.userService = &service.UserService{Store: app.db, Hasher: app.hasher, Auditor: app.auditor}
	app.settingsService = &service.SettingsService{Store: app.db, Auditor: app.auditor}
	app.bootstrapService = &service.BootstrapService{
		Store: app.db,
		Users: app.userService,
		Token: app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.AuditRetention = app.cfg.AuditRetention
}

// initProviders registers the identity providers that are configured.
func (app *Application) initProviders() *provider.Registry {
	var verifiers []provider.Verifier
	if app.cfg.GoogleClientID != "" {
		verifiers = append(verifiers, provider.NewGoogleVerifier(app.cfg.GoogleClientID, app.cfg.ProviderTimeout))
	}
	if app.cfg.TelegramBotToken != "" {
		verifiers = append(verifiers, provider.NewTelegramVerifier(app.cfg.TelegramBotToken, app.cfg.TelegramMaxAge))
	}
	for _, v := range verifiers {
		app.logger.Info("identity provider enabled", "provider", v.Name())
	}
	return provider.NewRegistry(verifiers...)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		BuildVersion,
		app.db,
		app.cache,
		app.metrics,
		httpx.RateLimitsFromEnv(),
		app.logger,
	)

	router.SessionService = app.sessionService
	router.CredentialService = app.credentialService
	router.SetupService = app.setupService
	router.ChallengeService = app.challengeService
	router.IdentityService = app.identityService
	router.UserService = app.userService
	router.SettingsService = app.settingsService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
