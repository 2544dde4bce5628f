package state

import (
	"fmt"

	"github.com/google/uuid"
)

// Obligation is a debt owed by Borrower to Lender. Paid tracks how much of
// Amount has been settled so far; LinearID survives transfers and partial
// settlements and identifies the debt across its successive versions.
type Obligation struct {
	Lender   Party  `json:"lender"`
	Borrower Party  `json:"borrower"`
	Amount   Amount `json:"amount"`
	Paid     Amount `json:"paid"`
	LinearID string `json:"linearId"`
}

// NewObligation drafts a fresh obligation with nothing paid and a new linear id.
func NewObligation(lender, borrower Party, amount Amount) Obligation {
	return Obligation{
		Lender:   lender,
		Borrower: borrower,
		Amount:   amount,
		Paid:     ZeroAmount(amount.Currency),
		LinearID: uuid.NewString(),
	}
}

// Participants is the signer set of any transition consuming or producing
// the obligation.
func (o Obligation) Participants() []Party {
	return []Party{o.Lender, o.Borrower}
}

// ParticipantKeys returns the owning keys of the participants.
func (o Obligation) ParticipantKeys() KeySet {
	return KeysOf(o.Participants()...)
}

// IsParticipant reports whether party is the lender or the borrower.
func (o Obligation) IsParticipant(party Party) bool {
	return o.ParticipantKeys().Contains(party.OwningKey)
}

// Outstanding returns Amount - Paid.
func (o Obligation) Outstanding() (Amount, error) {
	return o.Amount.Sub(o.Paid)
}

// WithNewLender returns a copy owed to lender instead.
func (o Obligation) WithNewLender(lender Party) Obligation {
	o.Lender = lender
	return o
}

// Pay returns a copy with amount added to Paid.
func (o Obligation) Pay(amount Amount) (Obligation, error) {
	paid, err := o.Paid.Add(amount)
	if err != nil {
		return Obligation{}, err
	}

	o.Paid = paid

	return o, nil
}

// Equal compares every attribute, amounts numerically.
func (o Obligation) Equal(other Obligation) bool {
	return o.Lender.Equal(other.Lender) &&
		o.Borrower.Equal(other.Borrower) &&
		o.Amount.Equal(other.Amount) &&
		o.Paid.Equal(other.Paid) &&
		o.LinearID == other.LinearID
}

// String is a compact rendering for logs.
func (o Obligation) String() string {
	return fmt.Sprintf("Obligation{%s owes %s %s, paid %s, id %s}",
		o.Borrower.Name, o.Lender.Name, o.Amount, o.Paid, o.LinearID)
}
