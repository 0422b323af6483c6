package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
)

const (
	// Crockford-like alphabet without 0/O and 1/I. Its length is 32, so a
	// byte masked to five bits picks a symbol without bias.
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeLength   = 10
	backupCodeCount    = 10
)

// BackupCodeVault generates single-use recovery codes and consumes them.
// Only salted fingerprints are stored.
type BackupCodeVault struct {
	Count int
}

// Generate returns the plaintext codes, formatted XXXXX-XXXXX, and their
// hashes for userID.
func (v *BackupCodeVault) Generate(userID string) ([]string, []string, error) {
	n := v.Count
	if n <= 0 {
		n = backupCodeCount
	}

	codes := make([]string, 0, n)
	hashes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	buf := make([]byte, backupCodeLength)

	for len(codes) < n {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		raw := make([]byte, backupCodeLength)
		for i, b := range buf {
			raw[i] = backupCodeAlphabet[b&31]
		}
		canonical := string(raw)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		codes = append(codes, canonical[:5]+"-"+canonical[5:])
		hashes = append(hashes, backupCodeHash(userID, canonical))
	}
	return codes, hashes, nil
}

// Hash returns the stored fingerprint of code, or false when code cannot be
// a backup code at all.
func (v *BackupCodeVault) Hash(userID, code string) (string, bool) {
	canonical, ok := canonicalBackupCode(code)
	if !ok {
		return "", false
	}
	return backupCodeHash(userID, canonical), true
}

// Consume marks code used inside tx.
func (v *BackupCodeVault) Consume(ctx context.Context, tx store.Tx, userID, code string, at time.Time) error {
	hash, ok := v.Hash(userID, code)
	if !ok {
		return ErrInvalidBackupCode
	}

	err := tx.BackupCodes().ConsumeBackupCode(ctx, userID, hash, at)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrBackupCodeAlreadyUsed
	case errors.Is(err, store.ErrNotFound):
		return ErrInvalidBackupCode
	case err != nil:
		return fmt.Errorf("failed to consume backup code: %w", err)
	}
	return nil
}

// canonicalBackupCode strips separators and case.
func canonicalBackupCode(code string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		switch {
		case r == '-' || r == ' ':
			continue
		case strings.ContainsRune(backupCodeAlphabet, r):
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	if b.Len() != backupCodeLength {
		return "", false
	}
	return b.String(), true
}

func backupCodeHash(userID, canonical string) string {
	return cryptox.FingerprintToken(userID + ":" + canonical)
}
