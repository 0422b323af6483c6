package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

type SettingsHandler struct {
	Settings *service.SettingsService
}

// HandleGet handles GET /v1/settings/{key}
//
//	@Summary		Read a setting
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			key	path		string	true	"Setting key"	Enums(ENB_ONLY_ONE_SESSION, ENB_MFA_REQUIRED)
//	@Success		200	{object}	authsdk.SettingResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/settings/{key} [get].
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := h.Settings.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.SettingResponse{Key: key, Enabled: v})
}

// HandlePut handles PUT /v1/settings/{key}
//
//	@Summary		Change a setting
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string					true	"Setting key"	Enums(ENB_ONLY_ONE_SESSION, ENB_MFA_REQUIRED)
//	@Param			request	body		authsdk.SettingRequest	true	"New value"
//	@Success		200		{object}	authsdk.SettingResponse
//	@Failure		404		{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/v1/settings/{key} [put].
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SettingRequest
	if !readJSON(w, r, &req) {
		return
	}

	key := r.PathValue("key")
	if err := h.Settings.Set(r.Context(), principal(r).UserID, key, *req.Enabled); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.SettingResponse{Key: key, Enabled: *req.Enabled})
}
