package contract

import (
	"github.com/LerianStudio/lib-iou/iou/state"
)

// verifyIssue evaluates every issuance rule. The per-output rules run against
// every produced output, so a transition with the wrong output count still
// reports what is wrong with each output.
func verifyIssue(tx state.Transition, cmd state.Command, v *violations) {
	v.require(len(tx.Inputs) == 0, ErrorInputShape, "inputs", ReasonIssueNoInputs)
	v.require(len(tx.Outputs) == 1, ErrorOutputShape, "outputs", ReasonIssueOneOutput)

	for i, out := range tx.Outputs {
		field := outputField(i)

		obligation, ok := out.AsObligation()
		if !ok {
			v.require(false, ErrorOutputShape, field, ReasonNotObligation)
			continue
		}

		v.require(obligation.Amount.IsPositive(), ErrorInvalidAmount, field+".amount", ReasonAmountPositive)
		v.require(!obligation.Lender.Equal(obligation.Borrower), ErrorInvalidIdentity, field+".borrower", ReasonSameIdentity)
		signerSetRules(v, cmd, obligation.ParticipantKeys(), ReasonIssueBothSign, ReasonIssueOnlyParties)
	}
}
