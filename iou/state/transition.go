package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// OutputType tags the kind of fact carried by an Output.
type OutputType string

// OutputObligation marks an output carrying an Obligation.
const OutputObligation OutputType = "OBLIGATION"

// Output is a fact produced by a transition.
type Output struct {
	Type       OutputType  `json:"type"`
	Obligation *Obligation `json:"obligation,omitempty"`
}

// ObligationOutput wraps an obligation as a transition output.
func ObligationOutput(o Obligation) Output {
	return Output{Type: OutputObligation, Obligation: &o}
}

// AsObligation interprets the output as an Obligation.
func (o Output) AsObligation() (Obligation, bool) {
	if o.Type != OutputObligation || o.Obligation == nil {
		return Obligation{}, false
	}

	return *o.Obligation, true
}

// StateRef points at output Index of the committed transition TxID.
type StateRef struct {
	TxID  string `json:"txId"`
	Index int    `json:"index"`
}

// String renders "txid:index".
func (r StateRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// StateAndRef is a committed obligation together with its reference.
type StateAndRef struct {
	Ref   StateRef   `json:"ref"`
	State Obligation `json:"state"`
}

// CommandType is the tag of the closed Command variant.
type CommandType string

const (
	CommandIssue    CommandType = "ISSUE"
	CommandTransfer CommandType = "TRANSFER"
	CommandSettle   CommandType = "SETTLE"
)

// Command declares the intent of a transition and the keys that must sign it.
// Settlement is only meaningful for CommandSettle.
type Command struct {
	Type       CommandType `json:"type"`
	Signers    []PublicKey `json:"signers"`
	Settlement *Amount     `json:"settlement,omitempty"`
}

func newCommand(typ CommandType, signers []PublicKey) Command {
	sorted := slices.Clone(signers)
	slices.Sort(sorted)

	return Command{Type: typ, Signers: slices.Compact(sorted)}
}

// IssueCommand builds an Issue command.
func IssueCommand(signers ...PublicKey) Command {
	return newCommand(CommandIssue, signers)
}

// TransferCommand builds a Transfer command.
func TransferCommand(signers ...PublicKey) Command {
	return newCommand(CommandTransfer, signers)
}

// SettleCommand builds a Settle command paying amount.
func SettleCommand(amount Amount, signers ...PublicKey) Command {
	cmd := newCommand(CommandSettle, signers)
	cmd.Settlement = &amount

	return cmd
}

// SignerSet returns the declared signers as a set.
func (c Command) SignerSet() KeySet {
	return NewKeySet(c.Signers...)
}

// Transition is a proposed ledger mutation: it consumes Inputs, produces
// Outputs and is authorized by the signers of its command. Notary is the
// ordering collaborator that must finalize it.
type Transition struct {
	Inputs   []StateAndRef `json:"inputs"`
	Outputs  []Output      `json:"outputs"`
	Commands []Command     `json:"commands"`
	Notary   Party         `json:"notary"`
}

// CanonicalBytes is the deterministic encoding that digests and signatures
// cover. Field order follows the struct declaration and every collection is
// an ordered slice, so equal content always encodes to equal bytes.
func (t Transition) CanonicalBytes() ([]byte, error) {
	normalized := t
	if normalized.Inputs == nil {
		normalized.Inputs = []StateAndRef{}
	}

	if normalized.Outputs == nil {
		normalized.Outputs = []Output{}
	}

	if normalized.Commands == nil {
		normalized.Commands = []Command{}
	}

	b, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode transition: %w", err)
	}

	return b, nil
}

// Digest is the SHA-256 of CanonicalBytes.
func (t Transition) Digest() ([]byte, error) {
	b, err := t.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(b)

	return sum[:], nil
}

// ID is the hex encoded digest.
func (t Transition) ID() (string, error) {
	digest, err := t.Digest()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(digest), nil
}

// RequiredSigners is the union of the signers declared by every command.
func (t Transition) RequiredSigners() KeySet {
	set := make(KeySet)

	for _, cmd := range t.Commands {
		for _, key := range cmd.Signers {
			set[key] = struct{}{}
		}
	}

	return set
}

// InputRefs lists the references of the consumed inputs.
func (t Transition) InputRefs() []StateRef {
	refs := make([]StateRef, len(t.Inputs))
	for i, in := range t.Inputs {
		refs[i] = in.Ref
	}

	return refs
}

// Participants lists every party of every input and obligation output, once.
func (t Transition) Participants() []Party {
	parties := make([]Party, 0, 2*(len(t.Inputs)+len(t.Outputs)))

	for _, in := range t.Inputs {
		parties = append(parties, in.State.Participants()...)
	}

	for _, out := range t.Outputs {
		if o, ok := out.AsObligation(); ok {
			parties = append(parties, o.Participants()...)
		}
	}

	return UniqueParties(parties)
}

// ObligationOutputs returns the outputs carrying obligations.
func (t Transition) ObligationOutputs() []Obligation {
	out := make([]Obligation, 0, len(t.Outputs))

	for _, o := range t.Outputs {
		if obligation, ok := o.AsObligation(); ok {
			out = append(out, obligation)
		}
	}

	return out
}
