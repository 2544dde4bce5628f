package contract

import (
	"strings"

	"github.com/LerianStudio/lib-iou/iou/state"
)

// Policy is a local application check a counterparty runs after Verify and
// before countersigning. A non-nil error declines the transition and its
// message is returned to the initiator as the rejection reason.
type Policy func(tx state.Transition) error

// AcceptAll is the Policy that never declines.
func AcceptAll(state.Transition) error {
	return nil
}

// RequireObligationOutputs declines transitions producing anything other
// than obligations.
func RequireObligationOutputs(tx state.Transition) error {
	for i, out := range tx.Outputs {
		if _, ok := out.AsObligation(); !ok {
			return NewDomainError(ErrorPolicyRejected, outputField(i), ReasonNotObligation)
		}
	}

	return nil
}

// RequireFreshIssue declines issue transitions whose obligation is already
// partly paid, is paid in another currency or has no linear id. Transitions
// carrying any other command pass.
func RequireFreshIssue(tx state.Transition) error {
	if len(tx.Commands) != 1 || tx.Commands[0].Type != state.CommandIssue {
		return nil
	}

	v := &violations{}

	for i, out := range tx.Outputs {
		obligation, ok := out.AsObligation()
		if !ok {
			continue
		}

		field := outputField(i)
		v.require(obligation.Paid.IsZero() && obligation.Paid.SameCurrency(obligation.Amount),
			ErrorInvalidAmount, field+".paid", ReasonIssueUnpaid)
		v.require(strings.TrimSpace(obligation.LinearID) != "", ErrorInvalidLinearID, field+".linearId", ReasonIssueLinearID)
	}

	return v.err(state.CommandIssue)
}

// Policies runs every policy in order and stops at the first rejection.
func Policies(policies ...Policy) Policy {
	return func(tx state.Transition) error {
		for _, policy := range policies {
			if policy == nil {
				continue
			}

			if err := policy(tx); err != nil {
				return err
			}
		}

		return nil
	}
}
