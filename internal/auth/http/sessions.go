package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

// SessionsHandler serves logout and session management.
type SessionsHandler struct {
	Sessions *service.SessionService
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the session behind the bearer token.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/v1/auth/logout [post].
func (h *SessionsHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context(), principal(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll handles POST /v1/auth/logout-all
//
//	@Summary		Log out everywhere
//	@Description	Revokes every session of the caller, including this one.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/v1/auth/logout-all [post].
func (h *SessionsHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.LogoutAll(r.Context(), principal(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleList handles GET /v1/sessions
//
//	@Summary		List sessions
//	@Description	Lists the caller's sessions, newest first. Admins may pass user_id, or user_id=all for every user.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Param			user_id	query		string	false	"User id, or all"
//	@Param			active	query		bool	false	"Only sessions that are neither revoked nor expired"
//	@Success		200		{array}		authsdk.SessionInfo
//	@Failure		403		{object}	authsdk.ErrorResponse	"forbidden"
//	@Router			/v1/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	q := r.URL.Query()

	f := domain.SessionFilter{ActiveOnly: q.Get("active") == "true"}
	switch userID := q.Get("user_id"); userID {
	case "all":
		f.AllUsers = true
	default:
		f.UserID = userID
	}

	sessions, err := h.Sessions.List(r.Context(), p, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = authsdk.SessionInfo{
			ID:        s.ID,
			UserID:    s.UserID,
			IP:        s.IP,
			UserAgent: s.UserAgent,
			AMR:       s.AMR,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			RevokedAt: s.RevokedAt,
			Current:   s.ID == p.SessionID,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke handles POST /v1/sessions/revoke
//
//	@Summary		Revoke sessions
//	@Description	Revokes the listed sessions, or every session when session_ids is empty. Only admins may name another user.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RevokeSessionsRequest	true	"Sessions to revoke"
//	@Success		200		{object}	authsdk.RevokeSessionsResponse
//	@Failure		403		{object}	authsdk.ErrorResponse	"forbidden"
//	@Router			/v1/sessions/revoke [post].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RevokeSessionsRequest
	if !readJSON(w, r, &req) {
		return
	}

	revoked, err := h.Sessions.RevokeFor(r.Context(), principal(r), req.UserID, req.SessionIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if revoked == nil {
		revoked = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokeSessionsResponse{Revoked: revoked})
}
