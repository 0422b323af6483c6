package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

// MFAHandler handles the MFA steps of a login and MFA management for
// signed-in users.
type MFAHandler struct {
	Setup      *service.SetupService
	Challenges *service.ChallengeService
}

// HandleRequestSetup handles POST /v1/auth/mfa/setup
//
//	@Summary		Start MFA setup from a login
//	@Description	Exchanges the setup token of an mfa-setup login for a TOTP secret. The token works once.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFASetupRequest	true	"Setup token"
//	@Success		200		{object}	authsdk.MFASetupResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired"
//	@Router			/v1/auth/mfa/setup [post].
func (h *MFAHandler) HandleRequestSetup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFASetupRequest
	if !readJSON(w, r, &req) {
		return
	}

	res, err := h.Setup.RequestFromLogin(r.Context(), req.SetupToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		MFAToken:   res.MFAToken,
		TOTPSecret: res.TOTPSecret,
		OTPAuthURL: res.OTPAuthURL,
	})
}

// HandleConfirmSetup handles POST /v1/auth/mfa/setup/confirm
//
//	@Summary		Confirm MFA setup
//	@Description	Enables MFA once the code matches the pending secret and returns the backup codes. For setups started from a login, the returned MFA and login tokens finish that login.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAConfirmSetupRequest	true	"MFA token and code"
//	@Success		200		{object}	authsdk.MFAConfirmSetupResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_otp"
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired, mfa_has_been_setup"
//	@Router			/v1/auth/mfa/setup/confirm [post].
func (h *MFAHandler) HandleConfirmSetup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAConfirmSetupRequest
	if !readJSON(w, r, &req) {
		return
	}

	res, err := h.Setup.ConfirmSetup(r.Context(), req.MFAToken, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAConfirmSetupResponse{
		MFAToken:    res.MFAToken,
		LoginToken:  res.LoginToken,
		BackupCodes: res.BackupCodes,
	})
}

// HandleOTP handles POST /v1/auth/mfa/otp
//
//	@Summary		Finish a login with a TOTP code
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAOTPRequest	true	"MFA token and code"
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_otp"
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired"
//	@Failure		429		{object}	authsdk.ErrorResponse	"too_many_attempts"
//	@Router			/v1/auth/mfa/otp [post].
func (h *MFAHandler) HandleOTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAOTPRequest
	if !readJSON(w, r, &req) {
		return
	}

	issued, err := h.Challenges.LoginWithOTP(r.Context(), req.MFAToken, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(issued))
}

// HandleConfirmLogin handles POST /v1/auth/mfa/confirm
//
//	@Summary		Finish a login that went through MFA setup
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAConfirmLoginRequest	true	"MFA token, login token and code"
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_otp"
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired"
//	@Failure		429		{object}	authsdk.ErrorResponse	"too_many_attempts"
//	@Router			/v1/auth/mfa/confirm [post].
func (h *MFAHandler) HandleConfirmLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAConfirmLoginRequest
	if !readJSON(w, r, &req) {
		return
	}

	issued, err := h.Challenges.ConfirmLogin(r.Context(), req.MFAToken, req.LoginToken, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(issued))
}

// HandleBackup handles POST /v1/auth/mfa/backup
//
//	@Summary		Finish a login with a backup code
//	@Description	Each backup code works once. Attempts are counted separately from TOTP attempts.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFABackupRequest	true	"MFA token and backup code"
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_backup_code, backup_code_already_used"
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired"
//	@Failure		429		{object}	authsdk.ErrorResponse	"too_many_attempts"
//	@Router			/v1/auth/mfa/backup [post].
func (h *MFAHandler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFABackupRequest
	if !readJSON(w, r, &req) {
		return
	}

	issued, err := h.Challenges.VerifyBackupCode(r.Context(), req.MFAToken, req.BackupCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(issued))
}

// HandleStartSetup handles POST /v1/mfa/setup
//
//	@Summary		Start MFA setup
//	@Description	Creates a pending setup for the caller. The session used here is revoked once setup is confirmed.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.StartMFASetupResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_token"
//	@Failure		409	{object}	authsdk.ErrorResponse	"mfa_has_been_setup"
//	@Router			/v1/mfa/setup [post].
func (h *MFAHandler) HandleStartSetup(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	token, err := h.Setup.RequestSetup(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.StartMFASetupResponse{SetupToken: token})
}

// HandleSecret handles GET /v1/mfa/setup/{token}/secret
//
//	@Summary		Reveal the TOTP secret
//	@Description	Served once per setup token.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Param			token	path		string	true	"Setup token"
//	@Success		200		{object}	authsdk.TOTPSecretResponse
//	@Failure		409		{object}	authsdk.ErrorResponse	"session_expired"
//	@Router			/v1/mfa/setup/{token}/secret [get].
func (h *MFAHandler) HandleSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := h.Setup.TOTPSecret(r.Context(), principal(r).UserID, r.PathValue("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPSecretResponse{Secret: secret.Secret, URL: secret.URL})
}

// HandleDisable handles POST /v1/mfa/disable
//
//	@Summary		Disable MFA
//	@Description	Requires exactly one of a TOTP code or a backup code. Every session of the user is revoked.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.MFAProofRequest	true	"Proof of the second factor"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid_otp, invalid_backup_code"
//	@Failure		409	{object}	authsdk.ErrorResponse	"mfa_not_enabled"
//	@Router			/v1/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAProofRequest
	if !readJSON(w, r, &req) {
		return
	}

	if err := h.Challenges.DisableMFA(r.Context(), principal(r).UserID, proofOf(req)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles POST /v1/mfa/reset
//
//	@Summary		Reset MFA
//	@Description	Like disable, but returns a setup token to enroll a new authenticator through POST /v1/auth/mfa/setup.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAProofRequest	true	"Proof of the second factor"
//	@Success		200		{object}	authsdk.StartMFASetupResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_otp, invalid_backup_code"
//	@Failure		409		{object}	authsdk.ErrorResponse	"mfa_not_enabled"
//	@Router			/v1/mfa/reset [post].
func (h *MFAHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAProofRequest
	if !readJSON(w, r, &req) {
		return
	}

	token, err := h.Challenges.ResetMFA(r.Context(), principal(r).UserID, proofOf(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.StartMFASetupResponse{SetupToken: token})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code. Requires a current TOTP code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegenerateBackupCodesRequest	true	"TOTP code"
//	@Success		200		{object}	authsdk.BackupCodesResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_otp"
//	@Failure		409		{object}	authsdk.ErrorResponse	"mfa_not_enabled"
//	@Router			/v1/mfa/backup-codes [post].
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegenerateBackupCodesRequest
	if !readJSON(w, r, &req) {
		return
	}

	codes, err := h.Setup.RegenerateBackupCodes(r.Context(), principal(r).UserID, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

func proofOf(req authsdk.MFAProofRequest) service.MFAProof {
	return service.MFAProof{OTP: req.OTP, BackupCode: req.BackupCode}
}
