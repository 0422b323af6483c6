package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = remote
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(requestFrom("192.168.1.1:12345")))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestPrincipalKeyExtractor(t *testing.T) {
	req := requestFrom("192.168.1.1:12345")
	require.Empty(t, httpx.PrincipalKeyExtractor(req))

	req = req.WithContext(httpx.WithPrincipal(context.Background(), httpx.Principal{UserID: "u1"}))
	require.Equal(t, "user:u1", httpx.PrincipalKeyExtractor(req))

	key := httpx.CompositeKeyExtractor("|", httpx.IPKeyExtractor, httpx.PrincipalKeyExtractor)(req)
	require.Equal(t, "192.168.1.1|user:u1", key)
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3})(okHandler)

		for i := range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:1"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.2:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		mw := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
			func(*http.Request) string { return "" })
		h := mw(okHandler)

		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestFrom("192.168.1.1:1"))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("by user buckets per principal", func(t *testing.T) {
		h := httpx.RateLimitByUser(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler)
		as := func(user string) *http.Request {
			req := requestFrom("10.0.0.1:1")
			return req.WithContext(httpx.WithPrincipal(req.Context(), httpx.Principal{UserID: user}))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, as("alice"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, as("alice"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, as("bob"))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimitProfiles(t *testing.T) {
	p := httpx.DefaultRateLimits()
	for name, cfg := range map[string]httpx.RateLimitConfig{"strict": p.Strict, "moderate": p.Moderate, "public": p.Public} {
		require.Positive(t, cfg.RequestsPerWindow, name)
		require.Positive(t, cfg.Window, name)
		require.Positive(t, cfg.Burst, name)
	}
	require.Less(t, p.Strict.RequestsPerWindow, p.Moderate.RequestsPerWindow)
	require.Less(t, p.Moderate.RequestsPerWindow, p.Public.RequestsPerWindow)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	t.Run("no env uses defaults", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TEST", def))
	})

	t.Run("overrides all parameters", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "200")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_TEST_BURST", "250")

		cfg := httpx.ParseRateLimitFromEnv("TEST", def)
		require.Equal(t, 200, cfg.RequestsPerWindow)
		require.Equal(t, 30*time.Second, cfg.Window)
		require.Equal(t, 250, cfg.Burst)
	})

	t.Run("invalid and zero values use defaults", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "invalid")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "-10")
		t.Setenv("RATELIMIT_TEST_BURST", "0")

		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TEST", def))
	})

	t.Run("profiles read from env", func(t *testing.T) {
		t.Setenv("RATELIMIT_STRICT_REQUESTS", "3")
		require.Equal(t, 3, httpx.RateLimitsFromEnv().Strict.RequestsPerWindow)
	})
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1000000, Window: time.Minute, Burst: 1000})(okHandler)
	req := requestFrom("192.168.1.1:12345")

	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
