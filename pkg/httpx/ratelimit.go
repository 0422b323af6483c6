package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/purse/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// RateLimitProfiles groups the limits applied to each class of route.
type RateLimitProfiles struct {
	// Strict guards unauthenticated credential and MFA endpoints.
	Strict RateLimitConfig
	// Moderate guards authenticated account operations.
	Moderate RateLimitConfig
	// Public guards cheap read-only endpoints such as JWKS.
	Public RateLimitConfig
}

// DefaultRateLimits returns the built-in profiles.
func DefaultRateLimits() RateLimitProfiles {
	return RateLimitProfiles{
		Strict:   RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10},
		Moderate: RateLimitConfig{RequestsPerWindow: 60, Window: time.Minute, Burst: 20},
		Public:   RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	}
}

// RateLimitsFromEnv applies RATELIMIT_{STRICT,MODERATE,PUBLIC}_* overrides.
func RateLimitsFromEnv() RateLimitProfiles {
	p := DefaultRateLimits()
	p.Strict = ParseRateLimitFromEnv("STRICT", p.Strict)
	p.Moderate = ParseRateLimitFromEnv("MODERATE", p.Moderate)
	p.Public = ParseRateLimitFromEnv("PUBLIC", p.Public)
	return p
}

// ParseRateLimitFromEnv reads RATELIMIT_{prefix}_REQUESTS, _WINDOW_SEC and
// _BURST. Missing, invalid or non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor derives the bucket key for a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// PrincipalKeyExtractor keys on the authenticated user, if any.
func PrincipalKeyExtractor(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID
	}
	return ""
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// limiterSet keeps one token bucket per key.
type limiterSet struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (ls *limiterSet) get(key string) *rate.Limiter {
	if l, ok := ls.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := ls.limiters.LoadOrStore(key, rate.NewLimiter(ls.rate, ls.burst))
	ls.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops buckets that have refilled completely; a full bucket
// behaves exactly like a fresh one.
func (ls *limiterSet) maybeCleanup() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if time.Since(ls.lastCleanup) < 5*time.Minute {
		return
	}
	ls.lastCleanup = time.Now()

	ls.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(ls.burst) {
			ls.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware limits requests per key. Requests whose key cannot be
// derived pass through.
func RateLimitMiddleware(cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	ls := &limiterSet{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := ls.get(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.Reserve()
			retryAfter := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		})
	}
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated user, falling back to IP.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, func(r *http.Request) string {
		if key := PrincipalKeyExtractor(r); key != "" {
			return key
		}
		return IPKeyExtractor(r)
	})
}
