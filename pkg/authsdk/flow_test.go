package authsdk_test

import (
	"errors"
	"testing"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func apiErr(code string) error {
	return &authsdk.APIError{StatusCode: authsdk.StatusOf(code), Code: code}
}

func challengeFlow(t *testing.T) *authsdk.Flow {
	t.Helper()
	f := authsdk.NewFlow()
	require.NoError(t, f.HandleLogin(&authsdk.LoginResponse{
		Outcome:  authsdk.OutcomeMFAConfirm,
		MFAToken: "mfa-1",
		Methods:  []string{authsdk.MethodTOTP, authsdk.MethodBackupCode},
	}, nil))
	require.Equal(t, authsdk.StateMFAChallenge, f.State())
	return f
}

func TestFlowCompletedLogin(t *testing.T) {
	f := authsdk.NewFlow()
	require.Equal(t, authsdk.StateCredentials, f.State())

	sess := &authsdk.SessionResponse{AccessToken: "tok", SessionID: "s1"}
	require.NoError(t, f.HandleLogin(&authsdk.LoginResponse{Outcome: authsdk.OutcomeCompleted, Session: sess}, nil))
	require.Equal(t, authsdk.StateSuccess, f.State())
	require.Equal(t, sess, f.Session())
}

func TestFlowSetupPath(t *testing.T) {
	f := authsdk.NewFlow()
	require.NoError(t, f.HandleLogin(&authsdk.LoginResponse{Outcome: authsdk.OutcomeMFASetup, SetupToken: "setup-1"}, nil))
	require.Equal(t, authsdk.StateMFASetup, f.State())
	require.Equal(t, "setup-1", f.SetupToken())

	require.NoError(t, f.HandleSetupRequested(&authsdk.MFASetupResponse{MFAToken: "mfa-setup", TOTPSecret: "SECRET"}, nil))
	require.Equal(t, authsdk.StateMFASetup, f.State())
	require.Equal(t, "SECRET", f.TOTPSecret())

	// A wrong code keeps the flow in setup with the error in the setup slot.
	err := f.HandleSetupConfirmed(nil, apiErr(authsdk.CodeInvalidOTP))
	require.ErrorIs(t, err, authsdk.ErrInvalidOTP)
	require.Equal(t, authsdk.StateMFASetup, f.State())
	require.ErrorIs(t, f.Err(authsdk.SlotSetup), authsdk.ErrInvalidOTP)
	require.NoError(t, f.Err(authsdk.SlotCredentials))

	require.NoError(t, f.HandleSetupConfirmed(&authsdk.MFAConfirmSetupResponse{
		MFAToken:    "mfa-2",
		LoginToken:  "login-2",
		BackupCodes: []string{"AAAA-BBBB"},
	}, nil))
	require.Equal(t, authsdk.StateMFAChallenge, f.State())
	require.Equal(t, "login-2", f.LoginToken())
	require.Nil(t, f.Err(authsdk.SlotSetup))
	require.Empty(t, f.TOTPSecret())

	require.NoError(t, f.HandleMFAResult(&authsdk.SessionResponse{SessionID: "s"}, nil))
	require.Equal(t, authsdk.StateSuccess, f.State())
}

func TestFlowRejectsUnlistedTransitions(t *testing.T) {
	f := authsdk.NewFlow()

	require.ErrorIs(t, f.ShowBackup(), authsdk.ErrInvalidTransition)
	require.ErrorIs(t, f.HandleMFAResult(&authsdk.SessionResponse{}, nil), authsdk.ErrInvalidTransition)
	require.ErrorIs(t, f.HandleSetupConfirmed(&authsdk.MFAConfirmSetupResponse{}, nil), authsdk.ErrInvalidTransition)
	require.Equal(t, authsdk.StateCredentials, f.State())

	f = challengeFlow(t)
	// mfa-challenge never goes back to setup or credentials without Reset.
	require.ErrorIs(t, f.HandleLogin(&authsdk.LoginResponse{Outcome: authsdk.OutcomeMFASetup}, nil), authsdk.ErrInvalidTransition)
	require.ErrorIs(t, f.HandleSetupRequested(&authsdk.MFASetupResponse{}, nil), authsdk.ErrInvalidTransition)
	require.ErrorIs(t, f.ShowChallenge(), authsdk.ErrInvalidTransition)
	require.Equal(t, authsdk.StateMFAChallenge, f.State())
}

func TestFlowErrorsStayInTheirSlot(t *testing.T) {
	f := challengeFlow(t)

	require.Error(t, f.HandleMFAResult(nil, apiErr(authsdk.CodeInvalidOTP)))
	require.Equal(t, authsdk.StateMFAChallenge, f.State())

	require.NoError(t, f.ShowBackup())
	require.Error(t, f.HandleBackupResult(nil, apiErr(authsdk.CodeInvalidBackupCode)))

	require.ErrorIs(t, f.Err(authsdk.SlotMFA), authsdk.ErrInvalidOTP)
	require.ErrorIs(t, f.Err(authsdk.SlotBackup), authsdk.ErrInvalidBackupCode)
	require.NoError(t, f.Err(authsdk.SlotCredentials))
	require.NoError(t, f.Err(authsdk.SlotSetup))

	// Switching back and forth keeps both.
	require.NoError(t, f.ShowChallenge())
	require.NoError(t, f.ShowBackup())
	require.ErrorIs(t, f.Err(authsdk.SlotMFA), authsdk.ErrInvalidOTP)
}

func TestFlowLockoutIsPerChannel(t *testing.T) {
	f := challengeFlow(t)

	err := f.HandleMFAResult(nil, apiErr(authsdk.CodeTooManyAttempts))
	require.ErrorIs(t, err, authsdk.ErrTooManyAttempts)
	require.True(t, f.Locked(authsdk.SlotMFA))
	require.False(t, f.CanSubmit(authsdk.SlotMFA))
	require.False(t, f.RestartRequired())

	// The OTP channel stays locked; reporting another result is refused.
	require.ErrorIs(t, f.HandleMFAResult(&authsdk.SessionResponse{}, nil), authsdk.ErrLocked)

	// Backup codes are still usable.
	require.NoError(t, f.ShowBackup())
	require.True(t, f.CanSubmit(authsdk.SlotBackup))

	// Re-opening the challenge does not clear the lock.
	require.NoError(t, f.ShowChallenge())
	require.True(t, f.Locked(authsdk.SlotMFA))

	require.NoError(t, f.ShowBackup())
	require.NoError(t, f.HandleBackupResult(&authsdk.SessionResponse{SessionID: "s"}, nil))
	require.Equal(t, authsdk.StateSuccess, f.State())
}

func TestFlowResetClearsLocks(t *testing.T) {
	f := challengeFlow(t)
	require.Error(t, f.HandleMFAResult(nil, apiErr(authsdk.CodeTooManyAttempts)))
	require.NoError(t, f.ShowBackup())
	require.Error(t, f.HandleBackupResult(nil, apiErr(authsdk.CodeTooManyAttempts)))
	require.True(t, f.Locked(authsdk.SlotBackup))

	f.Reset()
	require.Equal(t, authsdk.StateCredentials, f.State())
	require.False(t, f.Locked(authsdk.SlotMFA))
	require.False(t, f.Locked(authsdk.SlotBackup))
	require.Empty(t, f.MFAToken())
	require.NoError(t, f.Err(authsdk.SlotMFA))
}

func TestFlowStateErrorsRequireRestart(t *testing.T) {
	f := challengeFlow(t)

	require.Error(t, f.HandleMFAResult(nil, apiErr(authsdk.CodeSessionExpired)))
	require.True(t, f.RestartRequired())
	require.False(t, f.CanSubmit(authsdk.SlotBackup))
	require.Equal(t, authsdk.StateMFAChallenge, f.State())

	f.Reset()
	require.False(t, f.RestartRequired())
}

func TestFlowTransportErrorsAreUpstream(t *testing.T) {
	f := authsdk.NewFlow()
	err := f.HandleLogin(nil, errors.New("dial tcp: connection refused"))
	require.Error(t, err)
	require.Equal(t, authsdk.KindUpstream, authsdk.KindOfError(f.Err(authsdk.SlotCredentials)))
	require.False(t, f.RestartRequired())
	require.Equal(t, authsdk.StateCredentials, f.State())
}

func TestFlowPolicyIsDistinctFromCredentials(t *testing.T) {
	f := authsdk.NewFlow()
	require.Error(t, f.HandleLogin(nil, apiErr(authsdk.CodeSuspiciousLoginBlocked)))

	err := f.Err(authsdk.SlotCredentials)
	require.Equal(t, authsdk.KindPolicy, authsdk.KindOfError(err))
	require.NotErrorIs(t, err, authsdk.ErrInvalidCredentials)
	require.True(t, f.CanSubmit(authsdk.SlotCredentials))
}

func TestFlowRejectsMissingResponse(t *testing.T) {
	f := authsdk.NewFlow()
	require.ErrorIs(t, f.HandleLogin(nil, nil), authsdk.ErrNoResponse)
	require.Equal(t, authsdk.StateCredentials, f.State())

	require.NoError(t, f.HandleLogin(&authsdk.LoginResponse{Outcome: authsdk.OutcomeMFASetup, SetupToken: "setup-1"}, nil))
	require.ErrorIs(t, f.HandleSetupRequested(nil, nil), authsdk.ErrNoResponse)
	require.ErrorIs(t, f.HandleSetupConfirmed(nil, nil), authsdk.ErrNoResponse)
	require.Equal(t, authsdk.StateMFASetup, f.State())
	require.Equal(t, "setup-1", f.SetupToken())

	f = challengeFlow(t)
	require.ErrorIs(t, f.HandleMFAResult(nil, nil), authsdk.ErrNoResponse)
	require.Equal(t, authsdk.StateMFAChallenge, f.State())
	require.True(t, f.CanSubmit(authsdk.SlotMFA))

	require.NoError(t, f.ShowBackup())
	require.ErrorIs(t, f.HandleBackupResult(nil, nil), authsdk.ErrNoResponse)
	require.Equal(t, authsdk.StateBackup, f.State())
}
