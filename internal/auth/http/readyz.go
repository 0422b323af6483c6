package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

const readyzTimeout = 2 * time.Second

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database, the cache and that signing keys are loaded.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	c cache.Store,
	keys *jwtx.KeySet,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()

		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"signer":   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK
		fail := func(name, msg string) {
			checks[name] = "error: " + msg
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := st.Ping(ctx); err != nil {
			fail("database", err.Error())
		}
		if err := c.Ping(ctx); err != nil {
			fail("cache", err.Error())
		}
		if !keys.IsReady() {
			fail("signer", "no keys loaded")
		}

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
