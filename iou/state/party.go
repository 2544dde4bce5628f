package state

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidPublicKey is returned when a PublicKey does not decode to an
// ed25519 public key.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is the lowercase hex encoding of a raw ed25519 public key.
type PublicKey string

// PublicKeyFromBytes encodes an ed25519 public key.
func PublicKeyFromBytes(key ed25519.PublicKey) PublicKey {
	return PublicKey(hex.EncodeToString(key))
}

// Bytes decodes the key.
func (k PublicKey) Bytes() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(k))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPublicKey, k.Short())
	}

	return ed25519.PublicKey(raw), nil
}

// Short returns the first 12 characters, enough to tell keys apart in logs.
func (k PublicKey) Short() string {
	const shortLen = 12
	if len(k) <= shortLen {
		return string(k)
	}

	return string(k[:shortLen])
}

// Party is an identity on the network. Two parties are the same party when
// they own the same key, whatever their display names.
type Party struct {
	Name      string    `json:"name"`
	OwningKey PublicKey `json:"owningKey"`
}

// Equal compares parties by owning key.
func (p Party) Equal(other Party) bool {
	return p.OwningKey == other.OwningKey
}

// String returns the display name followed by the short key.
func (p Party) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.OwningKey.Short())
}

// KeySet is an unordered set of public keys.
type KeySet map[PublicKey]struct{}

// NewKeySet builds a set from keys, dropping duplicates.
func NewKeySet(keys ...PublicKey) KeySet {
	set := make(KeySet, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}

	return set
}

// KeysOf returns the owning keys of parties as a set.
func KeysOf(parties ...Party) KeySet {
	set := make(KeySet, len(parties))
	for _, party := range parties {
		set[party.OwningKey] = struct{}{}
	}

	return set
}

// Contains reports whether key belongs to the set.
func (s KeySet) Contains(key PublicKey) bool {
	_, ok := s[key]
	return ok
}

// Minus returns the keys of s absent from other, sorted.
func (s KeySet) Minus(other KeySet) []PublicKey {
	out := make([]PublicKey, 0)

	for key := range s {
		if !other.Contains(key) {
			out = append(out, key)
		}
	}

	slices.Sort(out)

	return out
}

// Equal reports whether both sets hold exactly the same keys.
func (s KeySet) Equal(other KeySet) bool {
	if len(s) != len(other) {
		return false
	}

	for key := range s {
		if !other.Contains(key) {
			return false
		}
	}

	return true
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []PublicKey {
	out := make([]PublicKey, 0, len(s))
	for key := range s {
		out = append(out, key)
	}

	slices.Sort(out)

	return out
}

// UniqueParties removes parties sharing an owning key, keeping first occurrences.
func UniqueParties(parties []Party) []Party {
	seen := make(KeySet, len(parties))
	out := make([]Party, 0, len(parties))

	for _, party := range parties {
		if seen.Contains(party.OwningKey) {
			continue
		}

		seen[party.OwningKey] = struct{}{}
		out = append(out, party)
	}

	return out
}
