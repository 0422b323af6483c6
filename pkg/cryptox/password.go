package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	ErrPasswordMismatch = errors.New("password does not match")
	ErrInvalidHash      = errors.New("invalid hash format")
)

// Hasher hashes and verifies passwords with Argon2id. The pepper is mixed into
// every hash and lives outside the database.
type Hasher struct {
	pepper string
	dummy  string
}

// NewHasher returns a Hasher using pepper. It precomputes a dummy hash so
// lookups for unknown users can burn the same amount of work as real ones.
func NewHasher(pepper string) (*Hasher, error) {
	h := &Hasher{pepper: pepper}
	dummy, err := h.Hash("purse-dummy-password")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash generates a PHC-format Argon2id hash including salt and parameters.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(password+h.pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify compares a plaintext password against a PHC-style Argon2id hash.
func (h *Hasher) Verify(password, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return ErrInvalidHash
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("%w: hash: %v", ErrInvalidHash, err)
	}

	computed := argon2.IDKey(
		[]byte(password+h.pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115
	)
	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

// VerifyDummy runs a verification that always fails against the dummy hash.
func (h *Hasher) VerifyDummy(password string) {
	_ = h.Verify(password, h.dummy)
}

// LoadOrCreatePepper reads the pepper from path, generating and persisting a
// new random one when the file does not exist yet.
func LoadOrCreatePepper(path string) (string, error) {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	pepper, err := GenerateToken(keyLength)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(pepper), 0o600); err != nil {
		return "", err
	}
	return pepper, nil
}
