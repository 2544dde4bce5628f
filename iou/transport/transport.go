package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrTimeout is returned by Receive when the context deadline fires
	// before a message arrives.
	ErrTimeout = errors.New("session timed out")
	// ErrUnknownParty is returned when a session is opened to a party that
	// is not reachable on the network.
	ErrUnknownParty = errors.New("unknown party")
	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrTransportClosed is returned when using a closed transport.
	ErrTransportClosed = errors.New("transport closed")
)

// Kind tags a flow message.
type Kind string

const (
	KindProposal  Kind = "PROPOSAL"
	KindSignature Kind = "SIGNATURE"
	KindRejection Kind = "REJECTION"
	KindFinalized Kind = "FINALIZED"
	KindNotarize  Kind = "NOTARIZE"
	KindNotarized Kind = "NOTARIZED"
	KindConflict  Kind = "CONFLICT"
	KindFailure   Kind = "FAILURE"
)

// Initiates reports whether a message of this kind may open a session on
// the receiving side.
func (k Kind) Initiates() bool {
	switch k {
	case KindProposal, KindNotarize, KindFinalized:
		return true
	default:
		return false
	}
}

// Message is the unit exchanged on a session.
type Message struct {
	SessionID string          `json:"sessionId"`
	Kind      Kind            `json:"kind"`
	From      state.Party     `json:"from"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a message of the given kind. Sessions
// stamp SessionID and From when the message is sent.
func NewMessage(kind Kind, payload any) (Message, error) {
	msg := Message{Kind: kind}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}

		msg.Payload = b
	}

	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", m.Kind)
	}

	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}

	return nil
}

// Session is a bidirectional conversation with one counterparty.
type Session interface {
	ID() string
	Counterparty() state.Party
	Send(ctx context.Context, msg Message) error
	// Receive blocks for the next message. It returns an error wrapping
	// ErrTimeout when ctx's deadline expires.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Transport opens sessions to parties and accepts sessions they open.
type Transport interface {
	Open(ctx context.Context, party state.Party) (Session, error)
	Accept(ctx context.Context) (Session, error)
	Close() error
}

// waitErr maps a finished context to the transport error taxonomy.
func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	return ctx.Err()
}
