package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer         string // Issuer claim for session tokens and TOTP labels (default: purse)
	BootstrapToken string // Optional: enables POST /v1/bootstrap when set

	DatabaseFile   string // Path to SQLite database file (default: ./auth.db)
	PepperFile     string // Path to file containing pepper for password hashing (default: ./pepper)
	SigningKeyFile string // Path to the Ed25519 PEM; empty generates an ephemeral key

	CacheDriver   string // memory or redis (default: memory)
	CacheSize     int    // Entry limit of the memory cache (default: 100000)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionTTL      time.Duration // Session lifetime (default: 7 days)
	SessionCacheTTL time.Duration // How long a validated session is trusted without the database (default: 30s)

	MFASetupTTL     time.Duration // Setup token lifetime (default: 10m)
	MFAChallengeTTL time.Duration // MFA token lifetime (default: 5m)
	MFAMaxAttempts  int           // Wrong codes per channel before lockout (default: 5)

	SecurityWindow      time.Duration // Failed-login counting window (default: 15m)
	SecurityStepUpAfter int           // Failures before MFA is forced (default: 3, 0 disables)
	SecurityBlockAfter  int           // Failures before logins are blocked (default: 10, 0 disables)

	GoogleClientID   string        // Optional: enables Google sign-in
	TelegramBotToken string        // Optional: enables Telegram sign-in and linking
	TelegramMaxAge   time.Duration // Oldest accepted Telegram auth_date (default: 24h)
	ProviderTimeout  time.Duration // Bound on one provider verification (default: 5s)

	AuditBuffer    int           // Audit dispatcher queue length (default: 1024)
	AuditRetention time.Duration // Zero keeps audit rows forever (default: 0)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the configuration from the environment. A .env file in the
// working directory is applied first; variables already set win.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "purse"),
		BootstrapToken: os.Getenv("BOOTSTRAP_TOKEN"),

		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),

		CacheDriver:   getEnvOrDefault("CACHE_DRIVER", "memory"),
		CacheSize:     getEnvIntOrDefault("CACHE_SIZE", 100_000),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		SessionTTL:      getEnvDurationOrDefault("SESSION_TTL", 7*24*time.Hour),
		SessionCacheTTL: getEnvDurationOrDefault("SESSION_CACHE_TTL", 30*time.Second),

		MFASetupTTL:     getEnvDurationOrDefault("MFA_SETUP_TTL", 10*time.Minute),
		MFAChallengeTTL: getEnvDurationOrDefault("MFA_CHALLENGE_TTL", 5*time.Minute),
		MFAMaxAttempts:  getEnvIntOrDefault("MFA_MAX_ATTEMPTS", 5),

		SecurityWindow:      getEnvDurationOrDefault("SECURITY_WINDOW", 15*time.Minute),
		SecurityStepUpAfter: getEnvIntOrDefault("SECURITY_STEPUP_AFTER", 3),
		SecurityBlockAfter:  getEnvIntOrDefault("SECURITY_BLOCK_AFTER", 10),

		GoogleClientID:   os.Getenv("GOOGLE_CLIENT_ID"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramMaxAge:   getEnvDurationOrDefault("TELEGRAM_MAX_AGE", 24*time.Hour),
		ProviderTimeout:  getEnvDurationOrDefault("PROVIDER_TIMEOUT", 5*time.Second),

		AuditBuffer:    getEnvIntOrDefault("AUDIT_BUFFER", 1024),
		AuditRetention: getEnvDurationOrDefault("AUDIT_RETENTION", 0),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if getEnvBoolOrDefault("SECURITY_DISABLED", false) {
		cfg.SecurityStepUpAfter = 0
		cfg.SecurityBlockAfter = 0
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
