package authsdk

import (
	"errors"
	"fmt"
	"slices"
)

// State is a step of the login flow.
type State string

const (
	StateCredentials  State = "credentials"
	StateMFASetup     State = "mfa-setup"
	StateMFAChallenge State = "mfa-challenge"
	StateBackup       State = "backup"
	StateSuccess      State = "success"
)

// Slot is one of the four per-step error slots. Slots double as the input
// channels that can be locked.
type Slot int

const (
	SlotCredentials Slot = iota
	SlotSetup
	SlotMFA
	SlotBackup

	numSlots
)

func (s Slot) String() string {
	switch s {
	case SlotCredentials:
		return "credentials"
	case SlotSetup:
		return "setup"
	case SlotMFA:
		return "mfa"
	case SlotBackup:
		return "backup"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ErrInvalidTransition is returned for any transition not in the table.
var ErrInvalidTransition = errors.New("authsdk: invalid flow transition")

// ErrLocked is returned when a handler reports a result for a locked channel.
var ErrLocked = errors.New("authsdk: channel locked")

// ErrNoResponse is returned when a handler gets neither a response nor an
// error. The flow is left as it was.
var ErrNoResponse = errors.New("authsdk: no response")

var transitions = map[State][]State{
	StateCredentials:  {StateMFASetup, StateMFAChallenge, StateSuccess},
	StateMFASetup:     {StateMFAChallenge, StateSuccess},
	StateMFAChallenge: {StateBackup, StateSuccess},
	StateBackup:       {StateMFAChallenge, StateSuccess},
	StateSuccess:      {StateSuccess},
}

// Flow sequences one login attempt on the client. It never performs I/O and
// only moves when a server response says so. A Flow is not safe for
// concurrent use.
type Flow struct {
	state State

	setupToken string
	mfaToken   string
	loginToken string

	totpSecret  string
	otpAuthURL  string
	backupCodes []string
	methods     []string
	session     *SessionResponse

	errs    [numSlots]error
	locked  [numSlots]bool
	restart bool
}

// NewFlow returns a flow waiting for credentials.
func NewFlow() *Flow {
	return &Flow{state: StateCredentials}
}

func (f *Flow) State() State              { return f.state }
func (f *Flow) SetupToken() string        { return f.setupToken }
func (f *Flow) MFAToken() string          { return f.mfaToken }
func (f *Flow) LoginToken() string        { return f.loginToken }
func (f *Flow) TOTPSecret() string        { return f.totpSecret }
func (f *Flow) OTPAuthURL() string        { return f.otpAuthURL }
func (f *Flow) BackupCodes() []string     { return f.backupCodes }
func (f *Flow) Methods() []string         { return f.methods }
func (f *Flow) Session() *SessionResponse { return f.session }
func (f *Flow) Err(slot Slot) error       { return f.errs[slot] }
func (f *Flow) Locked(slot Slot) bool     { return f.locked[slot] }

// RestartRequired reports that the server considers the flow stale and the
// caller must Reset and log in again.
func (f *Flow) RestartRequired() bool { return f.restart }

// CanSubmit reports whether the input for slot may be submitted.
func (f *Flow) CanSubmit(slot Slot) bool {
	return !f.locked[slot] && !f.restart
}

// Reset discards everything and re-enters credentials. It is the only way to
// clear a lock.
func (f *Flow) Reset() {
	*f = Flow{state: StateCredentials}
}

// HandleLogin applies the result of Client.Login or Client.ProviderLogin.
func (f *Flow) HandleLogin(resp *LoginResponse, err error) error {
	if err := f.expect(StateCredentials, SlotCredentials); err != nil {
		return err
	}
	if err != nil {
		return f.fail(SlotCredentials, err)
	}
	if resp == nil {
		return ErrNoResponse
	}

	var next State
	switch resp.Outcome {
	case OutcomeCompleted:
		next = StateSuccess
	case OutcomeMFAConfirm:
		next = StateMFAChallenge
	case OutcomeMFASetup:
		next = StateMFASetup
	default:
		return fmt.Errorf("authsdk: unknown login outcome %q", resp.Outcome)
	}
	if err := f.transition(next); err != nil {
		return err
	}

	f.errs[SlotCredentials] = nil
	f.session = resp.Session
	f.mfaToken = resp.MFAToken
	f.methods = resp.Methods
	f.setupToken = resp.SetupToken
	return nil
}

// HandleSetupRequested applies the result of Client.RequestMFASetup. The
// flow stays in mfa-setup until the code is confirmed.
func (f *Flow) HandleSetupRequested(resp *MFASetupResponse, err error) error {
	if err := f.expect(StateMFASetup, SlotSetup); err != nil {
		return err
	}
	if err != nil {
		return f.fail(SlotSetup, err)
	}
	if resp == nil {
		return ErrNoResponse
	}

	f.errs[SlotSetup] = nil
	f.setupToken = ""
	f.mfaToken = resp.MFAToken
	f.totpSecret = resp.TOTPSecret
	f.otpAuthURL = resp.OTPAuthURL
	return nil
}

// HandleSetupConfirmed applies the result of Client.ConfirmMFASetup and moves
// to the challenge that finishes the login.
func (f *Flow) HandleSetupConfirmed(resp *MFAConfirmSetupResponse, err error) error {
	if err := f.expect(StateMFASetup, SlotSetup); err != nil {
		return err
	}
	if err != nil {
		return f.fail(SlotSetup, err)
	}
	if resp == nil {
		return ErrNoResponse
	}
	if err := f.transition(StateMFAChallenge); err != nil {
		return err
	}

	f.errs[SlotSetup] = nil
	f.totpSecret = ""
	f.otpAuthURL = ""
	f.mfaToken = resp.MFAToken
	f.loginToken = resp.LoginToken
	f.backupCodes = resp.BackupCodes
	f.methods = []string{MethodTOTP, MethodBackupCode}
	return nil
}

// HandleMFAResult applies the result of Client.LoginWithMFA or
// Client.ConfirmMFALogin.
func (f *Flow) HandleMFAResult(resp *SessionResponse, err error) error {
	return f.finish(StateMFAChallenge, SlotMFA, resp, err)
}

// HandleBackupResult applies the result of Client.VerifyBackupCode.
func (f *Flow) HandleBackupResult(resp *SessionResponse, err error) error {
	return f.finish(StateBackup, SlotBackup, resp, err)
}

// ShowBackup switches from the OTP challenge to backup-code entry. The OTP
// slot keeps its error and lock.
func (f *Flow) ShowBackup() error {
	if f.state != StateMFAChallenge {
		return ErrInvalidTransition
	}
	return f.transition(StateBackup)
}

// ShowChallenge switches back from backup-code entry to the OTP challenge.
func (f *Flow) ShowChallenge() error {
	if f.state != StateBackup {
		return ErrInvalidTransition
	}
	return f.transition(StateMFAChallenge)
}

func (f *Flow) finish(want State, slot Slot, resp *SessionResponse, err error) error {
	if err := f.expect(want, slot); err != nil {
		return err
	}
	if err != nil {
		return f.fail(slot, err)
	}
	if resp == nil {
		return ErrNoResponse
	}
	if err := f.transition(StateSuccess); err != nil {
		return err
	}
	f.errs[slot] = nil
	f.session = resp
	return nil
}

// expect guards a handler: it must run in state want, and the channel must
// not be locked or stale.
func (f *Flow) expect(want State, slot Slot) error {
	if f.state != want {
		return ErrInvalidTransition
	}
	if f.locked[slot] || f.restart {
		return ErrLocked
	}
	return nil
}

// fail records err in exactly one slot and never moves the state.
func (f *Flow) fail(slot Slot, err error) error {
	f.errs[slot] = err
	if CodeOfError(err) == CodeTooManyAttempts {
		f.locked[slot] = true
	}
	if KindOfError(err) == KindState {
		f.restart = true
	}
	return err
}

func (f *Flow) transition(to State) error {
	if !slices.Contains(transitions[f.state], to) {
		return ErrInvalidTransition
	}
	f.state = to
	return nil
}
