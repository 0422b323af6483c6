package domain

// Boolean settings. A key that was never written reads as false.
const (
	SettingOnlyOneSession = "ENB_ONLY_ONE_SESSION"
	SettingMFARequired    = "ENB_MFA_REQUIRED"
)

// KnownSettings lists the keys the settings API accepts.
var KnownSettings = []string{SettingOnlyOneSession, SettingMFARequired}
