package state

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMissingSignatures is returned when required signers have not signed.
	ErrMissingSignatures = errors.New("missing signatures")
	// ErrUnexpectedSigner is returned when a key outside the required set signed.
	ErrUnexpectedSigner = errors.New("unexpected signer")
	// ErrWrongNotary is returned when the notary signature is not from the
	// transition's designated notary.
	ErrWrongNotary = errors.New("signature is not from the designated notary")
)

// Signature is a detached ed25519 signature over a transition digest.
type Signature struct {
	By    PublicKey `json:"by"`
	Bytes []byte    `json:"bytes"`
}

// VerifySignature checks sig against key and digest.
func VerifySignature(key PublicKey, digest []byte, sig Signature) bool {
	if sig.By != key {
		return false
	}

	raw, err := key.Bytes()
	if err != nil {
		return false
	}

	return ed25519.Verify(raw, digest, sig.Bytes)
}

// MissingSignaturesError lists the required keys without a signature.
type MissingSignaturesError struct {
	Missing []PublicKey
}

func (e *MissingSignaturesError) Error() string {
	names := make([]string, len(e.Missing))
	for i, key := range e.Missing {
		names[i] = key.Short()
	}

	return fmt.Sprintf("%s: %s", ErrMissingSignatures, strings.Join(names, ", "))
}

func (e *MissingSignaturesError) Unwrap() error {
	return ErrMissingSignatures
}

// SignedTransition is a transition plus the signatures gathered so far.
type SignedTransition struct {
	Tx         Transition  `json:"tx"`
	Signatures []Signature `json:"signatures"`
}

// NewSignedTransition wraps tx without signatures.
func NewSignedTransition(tx Transition) SignedTransition {
	return SignedTransition{Tx: tx, Signatures: []Signature{}}
}

// ID is the identifier of the wrapped transition.
func (s SignedTransition) ID() (string, error) {
	return s.Tx.ID()
}

// WithSignature returns a copy carrying sig. A second signature from the same
// key replaces nothing; the first one is kept.
func (s SignedTransition) WithSignature(sig Signature) SignedTransition {
	if s.SignedBy().Contains(sig.By) {
		return s
	}

	out := SignedTransition{Tx: s.Tx, Signatures: make([]Signature, 0, len(s.Signatures)+1)}
	out.Signatures = append(out.Signatures, s.Signatures...)
	out.Signatures = append(out.Signatures, sig)

	return out
}

// SignedBy returns the keys that have signed.
func (s SignedTransition) SignedBy() KeySet {
	set := make(KeySet, len(s.Signatures))
	for _, sig := range s.Signatures {
		set[sig.By] = struct{}{}
	}

	return set
}

// MissingSigners returns the required keys without a signature, sorted.
func (s SignedTransition) MissingSigners() []PublicKey {
	return s.Tx.RequiredSigners().Minus(s.SignedBy())
}

// VerifySignatures checks every attached signature against the digest and
// that only keys listed in allowedMissing have not signed yet.
func (s SignedTransition) VerifySignatures(allowedMissing ...PublicKey) error {
	digest, err := s.Tx.Digest()
	if err != nil {
		return err
	}

	required := s.Tx.RequiredSigners()

	for _, sig := range s.Signatures {
		if !required.Contains(sig.By) {
			return fmt.Errorf("%w: %s", ErrUnexpectedSigner, sig.By.Short())
		}

		if !VerifySignature(sig.By, digest, sig) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, sig.By.Short())
		}
	}

	missing := s.MissingSigners()
	missing = slices.DeleteFunc(missing, func(key PublicKey) bool {
		return slices.Contains(allowedMissing, key)
	})

	if len(missing) > 0 {
		return &MissingSignaturesError{Missing: missing}
	}

	return nil
}

// IsFullySigned reports whether every required signer holds a valid signature.
func (s SignedTransition) IsFullySigned() bool {
	return s.VerifySignatures() == nil
}

// NotarizedTransition is a fully signed transition the notary has committed.
type NotarizedTransition struct {
	SignedTransition
	NotarySignature Signature `json:"notarySignature"`
}

// Verify checks the full signer set and the notary signature.
func (n NotarizedTransition) Verify() error {
	if err := n.VerifySignatures(); err != nil {
		return err
	}

	if n.NotarySignature.By != n.Tx.Notary.OwningKey {
		return ErrWrongNotary
	}

	digest, err := n.Tx.Digest()
	if err != nil {
		return err
	}

	if !VerifySignature(n.Tx.Notary.OwningKey, digest, n.NotarySignature) {
		return fmt.Errorf("%w: notary %s", ErrInvalidSignature, n.Tx.Notary.Name)
	}

	return nil
}
