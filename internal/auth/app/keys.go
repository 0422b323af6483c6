package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

// InitSigningKey loads the Ed25519 key that signs session tokens and
// publishes its public half in a KeySet.
//
// With SigningKeyFile set the key is read from disk, and created there on
// first start, so sessions survive restarts. Without it a fresh key is
// generated and every session is invalidated when the service restarts.
func InitSigningKey(cfg Config, logger *slog.Logger) (*jwtx.EdDSASigner, *jwtx.KeySet, error) {
	var (
		pemKey []byte
		err    error
	)
	if cfg.SigningKeyFile != "" {
		pemKey, err = cryptox.LoadOrCreateEd25519Key(cfg.SigningKeyFile)
		logger.Info("signing key loaded", "path", cfg.SigningKeyFile)
	} else {
		pemKey, err = cryptox.GenerateEd25519Key()
		logger.Warn("using ephemeral signing key, sessions end on restart")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load signing key: %w", err)
	}

	// The kid is derived from the key so a persisted key keeps its id.
	kid := cryptox.FingerprintToken(string(pemKey))[:16]
	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	if err != nil {
		return nil, nil, fmt.Errorf("parse signing key: %w", err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddJWK(signer.PublicJWK()); err != nil {
		return nil, nil, fmt.Errorf("publish signing key: %w", err)
	}
	return signer, keys, nil
}
