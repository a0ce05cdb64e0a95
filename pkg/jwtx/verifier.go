package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrMissingKID  = errors.New("jwtx: missing kid")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrRetiredKID  = errors.New("jwtx: retired kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// VerifyOptions are the expectations every token must meet.
type VerifyOptions struct {
	// Issuer the token must carry. Empty disables the check.
	Issuer string

	// Leeway is tolerated past exp and before nbf/iat.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Verifier checks signature, algorithm, key id, issuer and time claims.
// It never touches storage.
type Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *Verifier {
	return &Verifier{keys: keys, opts: opts}
}

// WithLeeway returns a copy of v that tolerates a different leeway.
func (v *Verifier) WithLeeway(leeway time.Duration) *Verifier {
	opts := v.opts
	opts.Leeway = leeway
	return &Verifier{keys: v.keys, opts: opts}
}

// Verify parses token and returns its claims, or one of the package errors.
func (v *Verifier) Verify(token string) (Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{AlgorithmHS256, AlgorithmEdDSA}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.opts.Leeway),
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(v.opts.Now))
	}

	var claims Claims
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, &claims, v.keyFunc)
	if err != nil {
		return Claims{}, classify(err)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKID
	}

	alg, key, err := v.keys.Lookup(kid)
	if err != nil {
		return nil, err
	}

	// The header alg must match the key's registered alg, so an EdDSA public
	// key can never be used as an HMAC secret.
	if t.Method.Alg() != alg {
		return nil, ErrAlgMismatch
	}
	return key, nil
}

func classify(err error) error {
	for _, sentinel := range []error{ErrMissingKID, ErrRetiredKID, ErrUnknownKID, ErrAlgMismatch} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
