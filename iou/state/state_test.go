//go:build unit

package state

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSigner struct {
	party Party
	key   ed25519.PrivateKey
}

func newTestSigner(t *testing.T, name string) testSigner {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	return testSigner{party: Party{Name: name, OwningKey: PublicKeyFromBytes(pub)}, key: priv}
}

func (s testSigner) sign(t *testing.T, tx Transition) Signature {
	t.Helper()

	digest, err := tx.Digest()
	require.NoError(t, err)

	return Signature{By: s.party.OwningKey, Bytes: ed25519.Sign(s.key, digest)}
}

func issueTransition(lender, borrower, notary Party) Transition {
	obligation := NewObligation(lender, borrower, AmountOf(100, "usd"))

	return Transition{
		Outputs:  []Output{ObligationOutput(obligation)},
		Commands: []Command{IssueCommand(lender.OwningKey, borrower.OwningKey)},
		Notary:   notary,
	}
}

func TestPartyEqualityIsByKey(t *testing.T) {
	alice := newTestSigner(t, "alice").party
	impostor := Party{Name: "alice", OwningKey: newTestSigner(t, "x").party.OwningKey}
	renamed := Party{Name: "Alice Ltd", OwningKey: alice.OwningKey}

	assert.False(t, alice.Equal(impostor))
	assert.True(t, alice.Equal(renamed))
}

func TestPublicKeyBytes(t *testing.T) {
	alice := newTestSigner(t, "alice").party

	raw, err := alice.OwningKey.Bytes()
	require.NoError(t, err)
	assert.Len(t, raw, ed25519.PublicKeySize)

	_, err = PublicKey("zz").Bytes()
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestKeySet(t *testing.T) {
	set := NewKeySet("b", "a", "a")
	other := NewKeySet("a", "c")

	assert.Len(t, set, 2)
	assert.Equal(t, []PublicKey{"a", "b"}, set.Sorted())
	assert.Equal(t, []PublicKey{"b"}, set.Minus(other))
	assert.True(t, set.Equal(NewKeySet("a", "b")))
	assert.False(t, set.Equal(other))
}

func TestAmountArithmetic(t *testing.T) {
	ten := AmountOf(10, "usd")
	fivePointFive := NewAmount(decimal.RequireFromString("5.50"), "USD")

	sum, err := ten.Add(fivePointFive)
	require.NoError(t, err)
	assert.Equal(t, "15.5 USD", sum.String())

	diff, err := ten.Sub(fivePointFive)
	require.NoError(t, err)
	assert.True(t, diff.Equal(NewAmount(decimal.RequireFromString("4.5"), "USD")))

	_, err = ten.Add(AmountOf(1, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.True(t, fivePointFive.LessThanOrEqual(ten))
	assert.False(t, ten.LessThanOrEqual(AmountOf(100, "EUR")))
	assert.False(t, ZeroAmount("USD").IsPositive())
}

func TestObligationIsImmutable(t *testing.T) {
	alice := newTestSigner(t, "alice").party
	bob := newTestSigner(t, "bob").party
	carol := newTestSigner(t, "carol").party

	original := NewObligation(alice, bob, AmountOf(100, "USD"))
	assert.True(t, original.Paid.Equal(ZeroAmount("USD")))
	assert.NotEmpty(t, original.LinearID)

	transferred := original.WithNewLender(carol)
	paid, err := original.Pay(AmountOf(40, "USD"))
	require.NoError(t, err)

	assert.True(t, original.Lender.Equal(alice))
	assert.True(t, transferred.Lender.Equal(carol))
	assert.Equal(t, original.LinearID, transferred.LinearID)
	assert.True(t, original.Paid.Equal(ZeroAmount("USD")))
	assert.True(t, paid.Paid.Equal(AmountOf(40, "USD")))

	outstanding, err := paid.Outstanding()
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(AmountOf(60, "USD")))
}

func TestTransitionDigestIsDeterministicAcrossEncoding(t *testing.T) {
	alice := newTestSigner(t, "alice").party
	bob := newTestSigner(t, "bob").party
	notary := newTestSigner(t, "notary").party

	tx := issueTransition(alice, bob, notary)

	firstID, err := tx.ID()
	require.NoError(t, err)

	wire, err := json.Marshal(tx)
	require.NoError(t, err)

	var decoded Transition
	require.NoError(t, json.Unmarshal(wire, &decoded))

	secondID, err := decoded.ID()
	require.NoError(t, err)

	assert.Equal(t, firstID, secondID)
	assert.Len(t, firstID, 64)

	other := issueTransition(alice, bob, notary)
	otherID, err := other.ID()
	require.NoError(t, err)
	assert.NotEqual(t, firstID, otherID, "distinct linear ids must give distinct transitions")
}

func TestTransitionParticipantsAndSigners(t *testing.T) {
	alice := newTestSigner(t, "alice").party
	bob := newTestSigner(t, "bob").party
	carol := newTestSigner(t, "carol").party
	notary := newTestSigner(t, "notary").party

	input := NewObligation(alice, bob, AmountOf(10, "USD"))
	tx := Transition{
		Inputs:   []StateAndRef{{Ref: StateRef{TxID: "t1", Index: 0}, State: input}},
		Outputs:  []Output{ObligationOutput(input.WithNewLender(carol))},
		Commands: []Command{TransferCommand(alice.OwningKey, bob.OwningKey, carol.OwningKey)},
		Notary:   notary,
	}

	assert.Equal(t, []Party{alice, bob, carol}, tx.Participants())
	assert.True(t, tx.RequiredSigners().Equal(KeysOf(alice, bob, carol)))
	assert.Equal(t, []StateRef{{TxID: "t1", Index: 0}}, tx.InputRefs())
	assert.Equal(t, "t1:0", tx.InputRefs()[0].String())
}

func TestSignedTransitionSignatureLifecycle(t *testing.T) {
	alice := newTestSigner(t, "alice")
	bob := newTestSigner(t, "bob")
	notary := newTestSigner(t, "notary")

	tx := issueTransition(alice.party, bob.party, notary.party)
	stx := NewSignedTransition(tx)

	err := stx.VerifySignatures()
	var missingErr *MissingSignaturesError
	require.ErrorAs(t, err, &missingErr)
	assert.Len(t, missingErr.Missing, 2)

	partial := stx.WithSignature(alice.sign(t, tx))
	assert.Empty(t, stx.Signatures, "WithSignature must not mutate the receiver")
	assert.NoError(t, partial.VerifySignatures(bob.party.OwningKey))
	assert.Equal(t, []PublicKey{bob.party.OwningKey}, partial.MissingSigners())
	assert.False(t, partial.IsFullySigned())

	full := partial.WithSignature(bob.sign(t, tx))
	assert.True(t, full.IsFullySigned())
	assert.Len(t, full.WithSignature(bob.sign(t, tx)).Signatures, 2)
}

func TestSignedTransitionRejectsForgedAndForeignSignatures(t *testing.T) {
	alice := newTestSigner(t, "alice")
	bob := newTestSigner(t, "bob")
	mallory := newTestSigner(t, "mallory")
	notary := newTestSigner(t, "notary")

	tx := issueTransition(alice.party, bob.party, notary.party)

	forged := NewSignedTransition(tx).
		WithSignature(alice.sign(t, tx)).
		WithSignature(Signature{By: bob.party.OwningKey, Bytes: mallory.sign(t, tx).Bytes})
	assert.ErrorIs(t, forged.VerifySignatures(), ErrInvalidSignature)

	foreign := NewSignedTransition(tx).WithSignature(mallory.sign(t, tx))
	assert.ErrorIs(t, foreign.VerifySignatures(), ErrUnexpectedSigner)
}

func TestNotarizedTransitionVerify(t *testing.T) {
	alice := newTestSigner(t, "alice")
	bob := newTestSigner(t, "bob")
	notary := newTestSigner(t, "notary")

	tx := issueTransition(alice.party, bob.party, notary.party)
	full := NewSignedTransition(tx).WithSignature(alice.sign(t, tx)).WithSignature(bob.sign(t, tx))

	notarized := NotarizedTransition{SignedTransition: full, NotarySignature: notary.sign(t, tx)}
	assert.NoError(t, notarized.Verify())

	wrong := NotarizedTransition{SignedTransition: full, NotarySignature: alice.sign(t, tx)}
	assert.True(t, errors.Is(wrong.Verify(), ErrWrongNotary))
}
