package contract

import (
	"github.com/LerianStudio/lib-iou/iou/state"
)

func verifyTransfer(tx state.Transition, cmd state.Command, v *violations) {
	v.require(len(tx.Inputs) == 1, ErrorInputShape, "inputs", ReasonTransferOneInput)
	v.require(len(tx.Outputs) == 1, ErrorOutputShape, "outputs", ReasonTransferOneOutput)

	if len(tx.Inputs) != 1 || len(tx.Outputs) != 1 {
		return
	}

	input := tx.Inputs[0].State

	output, ok := tx.Outputs[0].AsObligation()
	if !ok {
		v.require(false, ErrorOutputShape, outputField(0), ReasonNotObligation)
		return
	}

	v.require(!output.Lender.Equal(input.Lender), ErrorStateMismatch, "outputs[0].lender", ReasonTransferNewLender)

	unchanged := output.WithNewLender(input.Lender)
	v.require(unchanged.Equal(input), ErrorStateMismatch, outputField(0), ReasonTransferOnlyLend)
	v.require(!output.Lender.Equal(output.Borrower), ErrorInvalidIdentity, "outputs[0].lender", ReasonSameIdentity)

	required := state.KeysOf(input.Lender, output.Lender, input.Borrower)
	v.require(required.Equal(cmd.SignerSet()), ErrorSignerSet, "commands[0].signers", ReasonTransferSigners)
}
