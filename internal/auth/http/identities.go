package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

type IdentitiesHandler struct {
	Identities *service.IdentityService
}

// HandleList handles GET /v1/identities
//
//	@Summary		List linked identities
//	@Tags			Identities
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}	authsdk.IdentityResponse
//	@Router			/v1/identities [get].
func (h *IdentitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Identities.ListIdentities(r.Context(), principal(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.IdentityResponse, len(ids))
	for i, id := range ids {
		out[i] = identityResponse(id)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleLinkTelegram handles POST /v1/identities/telegram
//
//	@Summary		Link a Telegram account
//	@Description	Takes the payload of the Telegram login widget. A user can link one Telegram account and a Telegram account can belong to one user.
//	@Tags			Identities
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TelegramLinkRequest	true	"Widget payload"
//	@Success		201		{object}	authsdk.IdentityResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_telegram_account"
//	@Failure		409		{object}	authsdk.ErrorResponse	"telegram_account_was_linked"
//	@Failure		503		{object}	authsdk.ErrorResponse	"provider_unavailable"
//	@Router			/v1/identities/telegram [post].
func (h *IdentitiesHandler) HandleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TelegramLinkRequest
	if !readJSON(w, r, &req) {
		return
	}

	ident, err := h.Identities.LinkTelegram(r.Context(), principal(r).UserID, telegramFields(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, identityResponse(ident))
}

// telegramFields rebuilds the signed field set. Empty optional fields were
// not part of the signature, so they are left out.
func telegramFields(req authsdk.TelegramLinkRequest) map[string]string {
	fields := map[string]string{
		"id":        strconv.FormatInt(req.ID, 10),
		"auth_date": strconv.FormatInt(req.AuthDate, 10),
		"hash":      req.Hash,
	}
	for k, v := range map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"username":   req.Username,
		"photo_url":  req.PhotoURL,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func identityResponse(i domain.Identity) authsdk.IdentityResponse {
	return authsdk.IdentityResponse{
		ID:        i.ID,
		Provider:  i.Provider,
		Subject:   i.Subject,
		Email:     i.Email,
		CreatedAt: i.CreatedAt,
	}
}
