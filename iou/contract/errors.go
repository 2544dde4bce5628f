package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-iou/iou/state"
)

// ErrorCode classifies a rule violation.
type ErrorCode string

const (
	// ErrorCommandShape indicates the transition does not carry exactly one known command.
	ErrorCommandShape ErrorCode = "2001"
	// ErrorInputShape indicates the consumed inputs do not match the command.
	ErrorInputShape ErrorCode = "2002"
	// ErrorOutputShape indicates the produced outputs do not match the command.
	ErrorOutputShape ErrorCode = "2003"
	// ErrorInvalidAmount indicates a non-positive, mismatched or excessive amount.
	ErrorInvalidAmount ErrorCode = "2004"
	// ErrorInvalidIdentity indicates the lender and borrower are the same party.
	ErrorInvalidIdentity ErrorCode = "2005"
	// ErrorSignerSet indicates the declared signers differ from the required ones.
	ErrorSignerSet ErrorCode = "2006"
	// ErrorStateMismatch indicates an output differs from its input beyond what the command allows.
	ErrorStateMismatch ErrorCode = "2007"
	// ErrorPolicyRejected indicates a local application policy declined the transition.
	ErrorPolicyRejected ErrorCode = "2008"
	// ErrorInvalidLinearID indicates a new obligation carries no linear id.
	ErrorInvalidLinearID ErrorCode = "2009"
)

// Rule reasons. They are part of the observable contract and reach callers
// and counterparties verbatim.
const (
	ReasonNoCommand         = "no single recognized command"
	ReasonMultipleCommands  = "exactly one command required"
	ReasonNotObligation     = "output must be an obligation"
	ReasonAmountPositive    = "amount must be positive"
	ReasonSameIdentity      = "lender and borrower cannot be the same identity"
	ReasonIssueNoInputs     = "no inputs should be consumed when issuing an obligation"
	ReasonIssueOneOutput    = "only one output should be created when issuing an obligation"
	ReasonIssueBothSign     = "both lender and borrower must sign an issue transition"
	ReasonIssueOnlyParties  = "only lender and borrower may sign an issue transition"
	ReasonIssueUnpaid       = "a new obligation must start with nothing paid"
	ReasonIssueLinearID     = "a new obligation must carry a linear id"
	ReasonTransferOneInput  = "exactly one obligation input should be consumed when transferring"
	ReasonTransferOneOutput = "exactly one output should be created when transferring"
	ReasonTransferNewLender = "the lender must change in a transfer"
	ReasonTransferOnlyLend  = "only the lender may change in a transfer"
	ReasonTransferSigners   = "borrower, old lender and new lender must sign a transfer and nobody else"
	ReasonSettleOneInput    = "exactly one obligation input should be consumed when settling"
	ReasonSettleDeclared    = "a settle command must declare the settlement amount"
	ReasonSettlePositive    = "settlement amount must be positive"
	ReasonSettleCurrency    = "settlement currency must match the obligation currency"
	ReasonSettleOverpay     = "settlement must not exceed the outstanding amount"
	ReasonSettleFullNoOut   = "full settlement must not produce an output"
	ReasonSettlePartialOut  = "partial settlement must produce exactly one output"
	ReasonSettleOnlyPaid    = "only the paid amount may change in a settlement"
	ReasonSettlePaidSum     = "paid amount must increase by exactly the settlement"
	ReasonSettlePaidBound   = "paid amount must not exceed the obligation amount"
	ReasonSettleSigners     = "lender and borrower must sign a settlement and nobody else"
)

// ErrContractViolation is matched by every ValidationError.
var ErrContractViolation = errors.New("contract violation")

// DomainError is one violated rule.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

// ValidationError reports every rule a transition violates, in rule order.
type ValidationError struct {
	Command    state.CommandType
	Violations []DomainError
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		messages[i] = v.Message
	}

	command := string(e.Command)
	if command == "" {
		command = "transition"
	}

	return fmt.Sprintf("%s rejected: %s", command, strings.Join(messages, "; "))
}

// Unwrap exposes ErrContractViolation and every violation to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations)+1)
	errs = append(errs, ErrContractViolation)

	for _, v := range e.Violations {
		errs = append(errs, v)
	}

	return errs
}

// Reasons lists the violation messages.
func (e *ValidationError) Reasons() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Message
	}

	return out
}

// HasReason reports whether message is among the violations.
func (e *ValidationError) HasReason(message string) bool {
	for _, v := range e.Violations {
		if v.Message == message {
			return true
		}
	}

	return false
}

// Reasons extracts the violation messages from err, or returns nil when err
// does not wrap a ValidationError.
func Reasons(err error) []string {
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		return nil
	}

	return validationErr.Reasons()
}

type violations struct {
	list []DomainError
}

func (v *violations) require(ok bool, code ErrorCode, field, message string) {
	if !ok {
		v.list = append(v.list, DomainError{Code: code, Field: field, Message: message})
	}
}

func (v *violations) err(command state.CommandType) error {
	if len(v.list) == 0 {
		return nil
	}

	return &ValidationError{Command: command, Violations: v.list}
}
