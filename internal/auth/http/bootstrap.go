package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the authentication system
//	@Description	Creates the first admin user. Only available when a bootstrap token is configured, and only while no user exists.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.BootstrapRequest	true	"Bootstrap token and admin account"
//	@Success		201		{object}	authsdk.UserResponse		"The admin user"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Invalid request body or validation failed"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Invalid bootstrap token"
//	@Failure		404		{object}	authsdk.ErrorResponse		"Bootstrap not enabled (no token configured)"
//	@Failure		409		{object}	authsdk.ErrorResponse		"System already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		httpx.WriteError(w, http.StatusNotFound, authsdk.CodeNotFound, "bootstrap endpoint is not enabled")
		return
	}

	// 2. Parse request body and validate
	var req authsdk.BootstrapRequest
	if !readJSON(w, r, &req) {
		return
	}

	// 3. Perform bootstrap
	l.Info("bootstrapping")
	admin, err := h.BootstrapService.Bootstrap(r.Context(), req.Token, domain.BootstrapData{
		Email:    strings.TrimSpace(req.Email),
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(admin))
}
