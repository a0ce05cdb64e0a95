package jwtx

import (
	"crypto/ed25519"
	"errors"

	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// EdDSASigner signs with an Ed25519 private key.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

// NewSignerEdDSA loads a PKCS8 PEM Ed25519 private key.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: key id is required")
	}

	key, err := cryptox.ParseEd25519Key(pemKey)
	if err != nil {
		return nil, err
	}
	return &EdDSASigner{
		kid: kid,
		key: key,
		pub: key.Public().(ed25519.PublicKey),
	}, nil
}

func (s *EdDSASigner) Alg() string          { return AlgorithmEdDSA }
func (s *EdDSASigner) KID() string          { return s.kid }
func (s *EdDSASigner) VerificationKey() any { return s.pub }

func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
