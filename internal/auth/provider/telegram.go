package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

// TelegramVerifier checks the signed payload of the Telegram login widget.
// See https://core.telegram.org/widgets/login#checking-authorization.
type TelegramVerifier struct {
	secret [32]byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTelegramVerifier accepts payloads signed for botToken that are at most
// maxAge old.
func NewTelegramVerifier(botToken string, maxAge time.Duration) *TelegramVerifier {
	return &TelegramVerifier{
		secret: sha256.Sum256([]byte(botToken)),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (v *TelegramVerifier) Name() string { return domain.ProviderTelegram }

// Verify takes the widget payload as a URL query string, which is how the
// widget hands it to redirect targets.
func (v *TelegramVerifier) Verify(_ context.Context, assertion string) (domain.Assertion, error) {
	values, err := url.ParseQuery(assertion)
	if err != nil {
		return domain.Assertion{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return v.VerifyFields(fields)
}

// VerifyFields checks the hash over every other field and the auth_date age.
func (v *TelegramVerifier) VerifyFields(fields map[string]string) (domain.Assertion, error) {
	got, err := hex.DecodeString(fields["hash"])
	if err != nil || len(got) != sha256.Size {
		return domain.Assertion{}, fmt.Errorf("%w: malformed hash", ErrInvalidAssertion)
	}

	mac := hmac.New(sha256.New, v.secret[:])
	mac.Write([]byte(DataCheckString(fields)))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.Assertion{}, fmt.Errorf("%w: hash mismatch", ErrInvalidAssertion)
	}

	authDate, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return domain.Assertion{}, fmt.Errorf("%w: bad auth_date", ErrInvalidAssertion)
	}
	age := v.now().Sub(time.Unix(authDate, 0))
	if v.maxAge > 0 && age > v.maxAge {
		return domain.Assertion{}, fmt.Errorf("%w: payload is %s old", ErrInvalidAssertion, age.Round(time.Second))
	}

	id := fields["id"]
	if id == "" {
		return domain.Assertion{}, fmt.Errorf("%w: missing id", ErrInvalidAssertion)
	}

	name := strings.TrimSpace(fields["first_name"] + " " + fields["last_name"])
	return domain.Assertion{
		Provider: domain.ProviderTelegram,
		Subject:  id,
		Name:     name,
	}, nil
}

// DataCheckString joins every field except hash as sorted "key=value" lines.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

// Sign computes the hash Telegram would send for fields. Used by tests and
// local tooling.
func Sign(botToken string, fields map[string]string) string {
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}
