package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))
}

func TestHTTPMiddlewareLogsRequest(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "purse", Level: "info", Output: &buf})

	var sawLogger bool
	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = slogx.FromContext(r.Context()) != logger
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(slogx.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.True(t, sawLogger)
	require.Equal(t, "req-123", rec.Header().Get(slogx.RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["msg"])
	require.Equal(t, "req-123", entry["req_id"])
	require.Equal(t, float64(http.StatusTeapot), entry["status"])
	require.Equal(t, "purse", entry["service"])
}

func TestHTTPMiddlewareGeneratesRequestID(t *testing.T) {
	h := slogx.HTTPMiddleware(slogx.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Header().Get(slogx.RequestIDHeader), 26)
}
