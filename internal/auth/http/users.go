package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

type UsersHandler struct {
	Users *service.UserService
}

// HandleCreate handles POST /v1/users
//
//	@Summary		Create a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateUserRequest	true	"New user"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		403		{object}	authsdk.ErrorResponse	"forbidden"
//	@Failure		409		{object}	authsdk.ErrorResponse	"already_exists"
//	@Router			/v1/users [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateUserRequest
	if !readJSON(w, r, &req) {
		return
	}

	u, err := h.Users.CreateUser(r.Context(), principal(r).UserID, service.NewUser{
		Email:    strings.TrimSpace(req.Email),
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(u))
}
