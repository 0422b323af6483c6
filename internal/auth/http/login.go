package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

// LoginHandler serves the primary-factor entry points.
type LoginHandler struct {
	Logins     *service.CredentialService
	Identities *service.IdentityService
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in with a password
//	@Description	Verifies the password and returns exactly one branch: a session (completed), an MFA token (mfa-confirm) or a setup token (mfa-setup).
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"suspicious_login_blocked"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate_limit_exceeded"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !readJSON(w, r, &req) {
		return
	}

	res, err := h.Logins.Login(r.Context(), service.Credentials{
		Identifier: req.Identifier,
		Password:   req.Password,
	}, deviceOf(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleProviderLogin handles POST /v1/auth/providers/{provider}
//
//	@Summary		Log in with an identity provider
//	@Description	Verifies a provider assertion (a Google ID token, or a Telegram widget payload as a query string) and continues like a password login.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string							true	"Provider name"	Enums(google, telegram)
//	@Param			request		body		authsdk.ProviderLoginRequest	true	"Assertion"
//	@Success		200			{object}	authsdk.LoginResponse
//	@Failure		400			{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401			{object}	authsdk.ErrorResponse	"invalid_identity"
//	@Failure		409			{object}	authsdk.ErrorResponse	"identity_conflict"
//	@Failure		503			{object}	authsdk.ErrorResponse	"provider_unavailable"
//	@Router			/v1/auth/providers/{provider} [post].
func (h *LoginHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ProviderLoginRequest
	if !readJSON(w, r, &req) {
		return
	}

	res, err := h.Identities.ProviderLogin(r.Context(), r.PathValue("provider"), req.Assertion, deviceOf(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}
