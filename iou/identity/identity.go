package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrEmptyName is returned when an identity or party has no name.
	ErrEmptyName = errors.New("identity name is required")
	// ErrInvalidSeed is returned when a seed is not ed25519.SeedSize bytes.
	ErrInvalidSeed = errors.New("invalid ed25519 seed")
)

// Identity is a named party together with its private signing key.
type Identity struct {
	party state.Party
	key   ed25519.PrivateKey
}

// New generates a fresh identity for name.
func New(name string) (*Identity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", name, err)
	}

	return &Identity{party: state.Party{Name: name, OwningKey: state.PublicKeyFromBytes(pub)}, key: priv}, nil
}

// FromSeed derives a deterministic identity from a 32 byte seed.
func FromSeed(name string, seed []byte) (*Identity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSeed, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub, _ := priv.Public().(ed25519.PublicKey)

	return &Identity{party: state.Party{Name: name, OwningKey: state.PublicKeyFromBytes(pub)}, key: priv}, nil
}

// Party returns the public face of the identity.
func (i *Identity) Party() state.Party {
	return i.party
}

// Key returns the owning key.
func (i *Identity) Key() state.PublicKey {
	return i.party.OwningKey
}

// Sign signs digest.
func (i *Identity) Sign(digest []byte) state.Signature {
	return state.Signature{By: i.party.OwningKey, Bytes: ed25519.Sign(i.key, digest)}
}

// SignTransition signs the digest of tx.
func (i *Identity) SignTransition(tx state.Transition) (state.Signature, error) {
	digest, err := tx.Digest()
	if err != nil {
		return state.Signature{}, err
	}

	return i.Sign(digest), nil
}

// Verify reports whether sig is key's signature over digest.
func Verify(key state.PublicKey, digest []byte, sig state.Signature) bool {
	return state.VerifySignature(key, digest, sig)
}
