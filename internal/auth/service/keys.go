package service

// Cache key layout. Tokens are never used raw; keys carry their fingerprint.
const (
	enrollPrefix    = "mfa:enroll:"
	setupPrefix     = "mfa:setup:"
	challengePrefix = "mfa:challenge:"
	userPrefix      = "mfa:user:"
	proofPrefix     = "mfa:proof:"
	failuresPrefix  = "security:failures:"
)

// Attempt channels of a challenge. Each has its own counter.
const (
	channelOTP    = "otp"
	channelBackup = "backup"
)

func enrollKey(fp string) string { return enrollPrefix + fp }
func setupKey(fp string) string { return setupPrefix + fp }
func setupShownKey(fp string) string { return setupPrefix + fp + ":shown" }
func challengeKey(fp string) string { return challengePrefix + fp }
func userChallengeKey(id string) string { return userPrefix + id }
func failuresKey(id string) string { return failuresPrefix + id }
func proofAttemptsKey(id string) string { return proofPrefix + id + ":attempts" }

func attemptsKey(fp, channel string) string {
	return challengePrefix + fp + ":attempts:" + channel
}
