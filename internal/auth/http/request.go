package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readJSON decodes and validates the body into v. On failure it writes an
// invalid_request response and returns false.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, "request body must be a single JSON object")
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// writeServiceError maps service errors onto their wire code and status.
// Anything unrecognised is logged and hidden behind server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := service.AsError(err); ok {
		desc := e.Message
		if e.Kind == authsdk.KindValidation {
			// Wrapped validation errors carry the detail the client needs.
			desc = err.Error()
		}
		httpx.WriteError(w, authsdk.StatusOf(e.Code), e.Code, desc)
		return
	}

	slogx.FromContext(r.Context()).Error("request failed", "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, authsdk.CodeServerError, "an internal error occurred")
}

// deviceOf extracts the request metadata recorded with sessions and audit
// entries.
func deviceOf(r *http.Request) domain.Device {
	return domain.Device{
		IP:        httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}

// principal returns the caller installed by AuthnMiddleware. Routes that use
// it are always behind that middleware.
func principal(r *http.Request) httpx.Principal {
	p, _ := httpx.PrincipalFrom(r.Context())
	return p
}

func sessionResponse(s domain.IssuedSession) authsdk.SessionResponse {
	return authsdk.SessionResponse{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		SessionID:   s.Session.ID,
		ExpiresAt:   s.Session.ExpiresAt,
		AMR:         s.Session.AMR,
	}
}

func loginResponse(res service.LoginResult) authsdk.LoginResponse {
	out := authsdk.LoginResponse{
		Outcome:    res.Outcome,
		MFAToken:   res.MFAToken,
		Methods:    res.Methods,
		SetupToken: res.SetupToken,
	}
	if res.Session != nil {
		s := sessionResponse(*res.Session)
		out.Session = &s
	}
	return out
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.Role,
		MFAEnabled: u.MFAEnabled,
		CreatedAt:  u.CreatedAt,
	}
}
