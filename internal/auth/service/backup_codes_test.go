package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackupCodeGenerate(t *testing.T) {
	v := &BackupCodeVault{}
	codes, hashes, err := v.Generate("u1")
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)
	require.Len(t, hashes, backupCodeCount)

	seen := map[string]bool{}
	for i, c := range codes {
		require.Len(t, c, backupCodeLength+1)
		require.Equal(t, byte('-'), c[5])
		require.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true

		h, ok := v.Hash("u1", c)
		require.True(t, ok)
		require.Equal(t, hashes[i], h)
	}
}

func TestBackupCodeHashIsPerUser(t *testing.T) {
	v := &BackupCodeVault{Count: 1}
	codes, hashes, err := v.Generate("u1")
	require.NoError(t, err)

	other, ok := v.Hash("u2", codes[0])
	require.True(t, ok)
	require.NotEqual(t, hashes[0], other)
}

func TestCanonicalBackupCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABCDE-FGHJK", "ABCDEFGHJK", true},
		{"abcde fghjk", "ABCDEFGHJK", true},
		{"abcdefghjk", "ABCDEFGHJK", true},
		{"ABCDE-FGHJ", "", false},
		{"ABCDE-FGHJKL", "", false},
		{"ABCDE-FGHI0", "", false}, // I and 0 are not in the alphabet
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := canonicalBackupCode(tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestBackupCodeAlphabet(t *testing.T) {
	require.Len(t, backupCodeAlphabet, 32)
	for _, r := range "01IO" {
		require.False(t, strings.ContainsRune(backupCodeAlphabet, r))
	}
}
