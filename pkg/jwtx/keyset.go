package jwtx

import (
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"
)

type verificationKey struct {
	alg string
	key any
}

// KeySet maps key ids to verification keys. Retired ids are remembered so
// tokens minted under them fail with ErrRetiredKID rather than a generic
// unknown-key error.
type KeySet struct {
	mu      sync.RWMutex
	keys    map[string]verificationKey
	retired map[string]struct{}
}

func NewKeySet() *KeySet {
	return &KeySet{
		keys:    make(map[string]verificationKey),
		retired: make(map[string]struct{}),
	}
}

// AddSigner registers the verification half of s.
func (k *KeySet) AddSigner(s Signer) error {
	return k.Add(s.KID(), s.Alg(), s.VerificationKey())
}

// Add registers a verification key. A retired kid cannot be re-added.
func (k *KeySet) Add(kid, alg string, key any) error {
	switch alg {
	case AlgorithmHS256:
		if b, ok := key.([]byte); !ok || len(b) == 0 {
			return fmt.Errorf("jwtx: HS256 key for %q must be a non-empty []byte", kid)
		}
	case AlgorithmEdDSA:
		if pub, ok := key.(ed25519.PublicKey); !ok || len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("jwtx: EdDSA key for %q must be an ed25519.PublicKey", kid)
		}
	default:
		return fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, gone := k.retired[kid]; gone {
		return fmt.Errorf("%w: %q", ErrRetiredKID, kid)
	}
	k.keys[kid] = verificationKey{alg: alg, key: key}
	return nil
}

// Retire removes kid from verification for good.
func (k *KeySet) Retire(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.keys, kid)
	k.retired[kid] = struct{}{}
}

// Lookup returns the algorithm and key registered under kid.
func (k *KeySet) Lookup(kid string) (string, any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if vk, ok := k.keys[kid]; ok {
		return vk.alg, vk.key, nil
	}
	if _, gone := k.retired[kid]; gone {
		return "", nil, ErrRetiredKID
	}
	return "", nil, ErrUnknownKID
}

// KIDs lists the live key ids in sorted order.
func (k *KeySet) KIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		out = append(out, kid)
	}
	sort.Strings(out)
	return out
}

func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}
