package provider

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:ABC-DEF"

func signedFields(authDate time.Time) map[string]string {
	fields := map[string]string{
		"id":         "987654",
		"first_name": "Alice",
		"username":   "alice",
		"auth_date":  strconv.FormatInt(authDate.Unix(), 10),
	}
	fields["hash"] = Sign(testBotToken, fields)
	return fields
}

func TestDataCheckString(t *testing.T) {
	got := DataCheckString(map[string]string{"id": "1", "auth_date": "2", "hash": "x", "first_name": "A"})
	require.Equal(t, "auth_date=2\nfirst_name=A\nid=1", got)
}

func TestTelegramVerify(t *testing.T) {
	v := NewTelegramVerifier(testBotToken, time.Hour)

	a, err := v.VerifyFields(signedFields(time.Now()))
	require.NoError(t, err)
	require.Equal(t, "telegram", a.Provider)
	require.Equal(t, "987654", a.Subject)
	require.Equal(t, "Alice", a.Name)

	query := url.Values{}
	for k, val := range signedFields(time.Now()) {
		query.Set(k, val)
	}
	a, err = v.Verify(context.Background(), query.Encode())
	require.NoError(t, err)
	require.Equal(t, "987654", a.Subject)
}

func TestTelegramRejects(t *testing.T) {
	v := NewTelegramVerifier(testBotToken, time.Hour)

	t.Run("tampered field", func(t *testing.T) {
		f := signedFields(time.Now())
		f["id"] = "1"
		_, err := v.VerifyFields(f)
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("other bot", func(t *testing.T) {
		f := signedFields(time.Now())
		f["hash"] = Sign("other-bot", f)
		_, err := v.VerifyFields(f)
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("malformed hash", func(t *testing.T) {
		f := signedFields(time.Now())
		f["hash"] = "zz"
		_, err := v.VerifyFields(f)
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})

	t.Run("stale auth_date", func(t *testing.T) {
		now := time.Now()
		v.now = func() time.Time { return now.Add(2 * time.Hour) }
		defer func() { v.now = time.Now }()

		_, err := v.VerifyFields(signedFields(now))
		require.ErrorIs(t, err, ErrInvalidAssertion)
	})
}
