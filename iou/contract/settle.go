package contract

import (
	"github.com/LerianStudio/lib-iou/iou/state"
)

func verifySettle(tx state.Transition, cmd state.Command, v *violations) {
	v.require(len(tx.Inputs) == 1, ErrorInputShape, "inputs", ReasonSettleOneInput)
	v.require(cmd.Settlement != nil, ErrorInvalidAmount, "commands[0].settlement", ReasonSettleDeclared)

	if len(tx.Inputs) != 1 || cmd.Settlement == nil {
		return
	}

	input := tx.Inputs[0].State
	settlement := *cmd.Settlement

	v.require(settlement.IsPositive(), ErrorInvalidAmount, "commands[0].settlement", ReasonSettlePositive)
	v.require(settlement.SameCurrency(input.Amount), ErrorInvalidAmount, "commands[0].settlement", ReasonSettleCurrency)
	v.require(input.ParticipantKeys().Equal(cmd.SignerSet()), ErrorSignerSet, "commands[0].signers", ReasonSettleSigners)

	if !settlement.SameCurrency(input.Amount) {
		return
	}

	outstanding, err := input.Outstanding()
	if err != nil {
		v.require(false, ErrorInvalidAmount, "inputs[0].paid", ReasonSettleCurrency)
		return
	}

	v.require(settlement.LessThanOrEqual(outstanding), ErrorInvalidAmount, "commands[0].settlement", ReasonSettleOverpay)

	if settlement.Equal(outstanding) {
		v.require(len(tx.Outputs) == 0, ErrorOutputShape, "outputs", ReasonSettleFullNoOut)
		return
	}

	v.require(len(tx.Outputs) == 1, ErrorOutputShape, "outputs", ReasonSettlePartialOut)

	if len(tx.Outputs) != 1 {
		return
	}

	output, ok := tx.Outputs[0].AsObligation()
	if !ok {
		v.require(false, ErrorOutputShape, outputField(0), ReasonNotObligation)
		return
	}

	expected, err := input.Pay(settlement)
	if err != nil {
		v.require(false, ErrorInvalidAmount, "outputs[0].paid", ReasonSettleCurrency)
		return
	}

	sameButPaid := output
	sameButPaid.Paid = input.Paid
	v.require(sameButPaid.Equal(input), ErrorStateMismatch, outputField(0), ReasonSettleOnlyPaid)
	v.require(output.Paid.Equal(expected.Paid), ErrorInvalidAmount, "outputs[0].paid", ReasonSettlePaidSum)
	v.require(output.Paid.LessThanOrEqual(output.Amount), ErrorInvalidAmount, "outputs[0].paid", ReasonSettlePaidBound)
}
