package jwtx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/finsightai/finsight/pkg/cryptox"
)

var ErrActiveKID = errors.New("jwtx: cannot retire the active signing key")

// KeyManager owns the active signing key and the set of keys tokens may be
// verified against. Rotation keeps the previous key verifiable until it is
// explicitly retired.
type KeyManager struct {
	mu       sync.RWMutex
	active   Signer
	keys     *KeySet
	verifier *Verifier
}

// NewKeyManager starts a manager signing with active.
func NewKeyManager(active Signer, opts VerifyOptions) (*KeyManager, error) {
	if active == nil {
		return nil, errors.New("jwtx: active signer is required")
	}

	keys := NewKeySet()
	if err := keys.AddSigner(active); err != nil {
		return nil, err
	}

	return &KeyManager{
		active:   active,
		keys:     keys,
		verifier: NewVerifier(keys, opts),
	}, nil
}

// Signer returns the key new tokens are minted with.
func (km *KeyManager) Signer() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active
}

func (km *KeyManager) Verifier() *Verifier { return km.verifier }
func (km *KeyManager) KeySet() *KeySet     { return km.keys }
func (km *KeyManager) IsReady() bool       { return km.keys.IsReady() }

// Sign mints claims with the active key.
func (km *KeyManager) Sign(claims Claims) (string, error) {
	return km.Signer().Sign(claims)
}

// AddVerificationKey accepts tokens from s without signing with it; used for
// the previous key after a restart with a new secret.
func (km *KeyManager) AddVerificationKey(s Signer) error {
	return km.keys.AddSigner(s)
}

// Rotate makes next the active key. The old key keeps verifying.
func (km *KeyManager) Rotate(next Signer) error {
	if next == nil {
		return errors.New("jwtx: signer cannot be nil")
	}
	if err := km.keys.AddSigner(next); err != nil {
		return fmt.Errorf("jwtx: add rotated key: %w", err)
	}

	km.mu.Lock()
	km.active = next
	km.mu.Unlock()
	return nil
}

// Retire stops accepting tokens signed under kid.
func (km *KeyManager) Retire(kid string) error {
	km.mu.RLock()
	activeKID := km.active.KID()
	km.mu.RUnlock()

	if kid == activeKID {
		return ErrActiveKID
	}
	km.keys.Retire(kid)
	return nil
}

// GenerateKeyID returns a random key id with the given prefix.
func GenerateKeyID(prefix string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return prefix + token, nil
}
