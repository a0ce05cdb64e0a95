package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// MinHMACSecretLength is the shortest HS256 secret accepted (256 bits).
const MinHMACSecretLength = 32

// Signer mints signed access tokens under a single key id.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)

	// VerificationKey is what a KeySet needs to check this signer's tokens:
	// the shared secret for HMAC, the public key for EdDSA.
	VerificationKey() any
}

// HS256Signer signs with a shared server secret.
type HS256Signer struct {
	kid    string
	secret []byte
}

// NewSignerHS256 creates an HMAC-SHA256 signer.
func NewSignerHS256(kid string, secret []byte) (Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: key id is required")
	}
	if len(secret) < MinHMACSecretLength {
		return nil, fmt.Errorf("jwtx: HS256 secret must be at least %d bytes", MinHMACSecretLength)
	}

	s := make([]byte, len(secret))
	copy(s, secret)
	return &HS256Signer{kid: kid, secret: s}, nil
}

func (s *HS256Signer) Alg() string          { return AlgorithmHS256 }
func (s *HS256Signer) KID() string          { return s.kid }
func (s *HS256Signer) VerificationKey() any { return s.secret }

func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.secret)
}
