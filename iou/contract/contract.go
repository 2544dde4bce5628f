package contract

import (
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/state"
)

type ruleSet func(tx state.Transition, cmd state.Command, v *violations)

var ruleSets = map[state.CommandType]ruleSet{
	state.CommandIssue:    verifyIssue,
	state.CommandTransfer: verifyTransfer,
	state.CommandSettle:   verifySettle,
}

// Verify accepts tx when it carries exactly one recognized command and
// satisfies every rule of that command. Otherwise it returns a
// *ValidationError listing each violated rule.
func Verify(tx state.Transition) error {
	v := &violations{}

	switch {
	case len(tx.Commands) == 0:
		v.require(false, ErrorCommandShape, "commands", ReasonNoCommand)
		return v.err("")
	case len(tx.Commands) > 1:
		v.require(false, ErrorCommandShape, "commands", ReasonMultipleCommands)
		return v.err("")
	}

	cmd := tx.Commands[0]

	rules, ok := ruleSets[cmd.Type]
	if !ok {
		v.require(false, ErrorCommandShape, "commands[0].type", ReasonNoCommand)
		return v.err(cmd.Type)
	}

	rules(tx, cmd, v)

	return v.err(cmd.Type)
}

func outputField(i int) string {
	return fmt.Sprintf("outputs[%d]", i)
}

// signerSetRules checks that the declared signers are exactly required.
// Signer-set equality is split in two: missingReason covers required keys
// that were not declared, extraReason covers declared keys nobody requires.
func signerSetRules(v *violations, cmd state.Command, required state.KeySet, missingReason, extraReason string) {
	declared := cmd.SignerSet()
	v.require(len(required.Minus(declared)) == 0, ErrorSignerSet, "commands[0].signers", missingReason)
	v.require(len(declared.Minus(required)) == 0, ErrorSignerSet, "commands[0].signers", extraReason)
}
