package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/jwtx"
)

// InitAuthKeys builds the KeyManager from configuration.
//
// HS256 signs with AUTH_SIGNING_SECRET. EdDSA signs with the PEM in
// AUTH_SIGNING_KEY_FILE; in dev a key is generated when none is given, and
// every token is invalidated on restart. A previous HS256 secret stays
// verifiable so a secret rotation does not log everybody out, and retired
// key ids are rejected even while their secret is still configured.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	active, err := activeSigner(cfg, logger)
	if err != nil {
		return nil, err
	}

	km, err := jwtx.NewKeyManager(active, jwtx.VerifyOptions{Issuer: cfg.Issuer})
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}

	if cfg.PreviousSigningSecret != "" {
		prev, err := jwtx.NewSignerHS256(cfg.PreviousSigningKeyID, []byte(cfg.PreviousSigningSecret))
		if err != nil {
			return nil, fmt.Errorf("invalid previous signing secret: %w", err)
		}
		if err := km.AddVerificationKey(prev); err != nil {
			return nil, err
		}
		logger.Info("previous signing key accepted for verification", "kid", prev.KID())
	}

	for _, kid := range cfg.RetiredKeyIDs {
		if err := km.Retire(kid); err != nil {
			return nil, fmt.Errorf("retire key %q: %w", kid, err)
		}
		logger.Info("signing key retired", "kid", kid)
	}

	logger.Info("signing keys loaded",
		"algorithm", active.Alg(),
		"kid", active.KID(),
		"issuer", cfg.Issuer,
	)
	return km, nil
}

func activeSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	switch cfg.Algorithm {
	case jwtx.AlgorithmEdDSA:
		var pemKey []byte
		if cfg.SigningKeyPEM != "" {
			b, err := os.ReadFile(cfg.SigningKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("read signing key: %w", err)
			}
			pemKey = b
		} else {
			b, err := cryptox.GenerateEd25519Key()
			if err != nil {
				return nil, err
			}
			pemKey = b
			logger.Warn("generated ephemeral EdDSA signing key, tokens will not survive a restart")
		}
		return jwtx.NewSignerEdDSA(cfg.SigningKeyID, pemKey)

	case jwtx.AlgorithmHS256:
		return jwtx.NewSignerHS256(cfg.SigningKeyID, []byte(cfg.SigningSecret))

	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
}
