package flow

import (
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/contract"
	"github.com/LerianStudio/lib-iou/iou/identity"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/google/uuid"
)

// NotarySelector picks the notary that orders a new obligation. Transitions
// consuming existing obligations always go to the notary that committed them.
type NotarySelector func(directory *identity.Directory) (state.Party, error)

// FirstNotary selects the first notary registered in the directory.
func FirstNotary(directory *identity.Directory) (state.Party, error) {
	notaries := directory.Notaries()
	if len(notaries) == 0 {
		return state.Party{}, ErrNoNotary
	}

	return notaries[0], nil
}

// assembleIssue builds the issuance of draft. A draft without a linear id
// gets a fresh one and an unset Paid becomes zero in the draft currency; a
// draft that is already paid is refused.
func (n *Node) assembleIssue(draft state.Obligation) (state.Transition, error) {
	if draft.Paid.Currency == "" && draft.Paid.IsZero() {
		draft.Paid = state.ZeroAmount(draft.Amount.Currency)
	}

	if draft.LinearID == "" {
		draft.LinearID = uuid.NewString()
	}

	tx := state.Transition{
		Outputs:  []state.Output{state.ObligationOutput(draft)},
		Commands: []state.Command{state.IssueCommand(draft.Lender.OwningKey, draft.Borrower.OwningKey)},
	}

	if err := contract.RequireFreshIssue(tx); err != nil {
		return state.Transition{}, err
	}

	notaryParty, err := n.selector(n.directory)
	if err != nil {
		return state.Transition{}, err
	}

	tx.Notary = notaryParty

	return tx, nil
}

func (n *Node) assembleTransfer(linearID string, newLender state.Party) (state.Transition, error) {
	input, notaryParty, err := n.consumable(linearID)
	if err != nil {
		return state.Transition{}, err
	}

	current := input.State

	return state.Transition{
		Inputs:   []state.StateAndRef{input},
		Outputs:  []state.Output{state.ObligationOutput(current.WithNewLender(newLender))},
		Commands: []state.Command{state.TransferCommand(current.Lender.OwningKey, current.Borrower.OwningKey, newLender.OwningKey)},
		Notary:   notaryParty,
	}, nil
}

func (n *Node) assembleSettle(linearID string, amount state.Amount) (state.Transition, error) {
	input, notaryParty, err := n.consumable(linearID)
	if err != nil {
		return state.Transition{}, err
	}

	current := input.State
	tx := state.Transition{
		Inputs:   []state.StateAndRef{input},
		Commands: []state.Command{state.SettleCommand(amount, current.Lender.OwningKey, current.Borrower.OwningKey)},
		Notary:   notaryParty,
	}

	outstanding, err := current.Outstanding()
	if err == nil && amount.SameCurrency(outstanding) && amount.Equal(outstanding) {
		return tx, nil
	}

	if paid, err := current.Pay(amount); err == nil {
		tx.Outputs = []state.Output{state.ObligationOutput(paid)}
	}

	return tx, nil
}

// consumable returns the current version of linearID and the notary that
// committed it.
func (n *Node) consumable(linearID string) (state.StateAndRef, state.Party, error) {
	input, err := n.vault.Unconsumed(linearID)
	if err != nil {
		return state.StateAndRef{}, state.Party{}, err
	}

	committed, err := n.vault.Transaction(input.Ref.TxID)
	if err != nil {
		return state.StateAndRef{}, state.Party{}, fmt.Errorf("obligation %s: %w", linearID, err)
	}

	return input, committed.Tx.Notary, nil
}

// prepare validates tx locally and signs it with the node key. Nothing
// leaves the node when it fails.
func (n *Node) prepare(tx state.Transition) (state.SignedTransition, error) {
	if err := contract.Verify(tx); err != nil {
		return state.SignedTransition{}, err
	}

	if !tx.RequiredSigners().Contains(n.identity.Key()) {
		return state.SignedTransition{}, fmt.Errorf("%w: %s", ErrNotParticipant, n.Party())
	}

	sig, err := n.identity.SignTransition(tx)
	if err != nil {
		return state.SignedTransition{}, err
	}

	return state.NewSignedTransition(tx).WithSignature(sig), nil
}
