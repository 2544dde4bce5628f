package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-iou/iou/notary"
	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrCounterpartyRejected is wrapped by CounterpartyRejectionError.
	ErrCounterpartyRejected = errors.New("counterparty rejected the transition")
	// ErrSessionTimeout is wrapped by SessionTimeoutError.
	ErrSessionTimeout = errors.New("counterparty session timed out")
	// ErrNotarizationConflict matches the notary's double-spend refusal.
	ErrNotarizationConflict = notary.ErrConflict
	// ErrNotParticipant is returned when the node would not sign its own
	// transition.
	ErrNotParticipant = errors.New("node is not a required signer")
	// ErrNoNotary is returned when the directory lists no notary.
	ErrNoNotary = errors.New("no notary available")
	// ErrUnknownNotary is returned when a proposal names a notary missing
	// from the directory.
	ErrUnknownNotary = errors.New("unknown notary")
	// ErrProtocol is returned when a counterparty breaks the session protocol.
	ErrProtocol = errors.New("protocol violation")
	// ErrInvalidCounterpartySignature is returned when a returned signature
	// does not verify against the counterparty's key and the digest.
	ErrInvalidCounterpartySignature = errors.New("counterparty signature does not verify")
)

// CounterpartyRejectionError carries the reason a signer declined, verbatim.
type CounterpartyRejectionError struct {
	Party  state.Party
	Reason string
}

func (e *CounterpartyRejectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCounterpartyRejected, e.Party.Name, e.Reason)
}

func (e *CounterpartyRejectionError) Unwrap() error {
	return ErrCounterpartyRejected
}

// SessionTimeoutError reports a counterparty that did not answer in time.
type SessionTimeoutError struct {
	Party   state.Party
	Timeout time.Duration
}

func (e *SessionTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %s", ErrSessionTimeout, e.Party.Name, e.Timeout)
}

func (e *SessionTimeoutError) Unwrap() error {
	return ErrSessionTimeout
}
