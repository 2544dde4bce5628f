package vault

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrNotFound is returned when a record is not in the vault.
	ErrNotFound = errors.New("not found in vault")
	// ErrNotParticipant is returned when recording a transition the owner
	// does not take part in.
	ErrNotParticipant = errors.New("vault owner is not a participant")
)

// Vault is a node's committed record. It only ever holds notarized
// transitions, so nothing in it can be rolled back.
type Vault struct {
	owner  state.Party
	logger log.Logger

	mu           sync.RWMutex
	transactions map[string]state.NotarizedTransition
	unconsumed   map[string]state.StateAndRef
	consumed     map[state.StateRef]string
}

// New returns an empty vault for owner.
func New(owner state.Party, logger log.Logger) *Vault {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Vault{
		owner:        owner,
		logger:       logger,
		transactions: make(map[string]state.NotarizedTransition),
		unconsumed:   make(map[string]state.StateAndRef),
		consumed:     make(map[state.StateRef]string),
	}
}

// Record stores a notarized transition, marks its inputs consumed and keeps
// its obligation outputs the owner takes part in. Transitions may arrive out
// of order: an output already consumed by a recorded transition is never
// tracked. Recording the same transition twice is a no-op.
func (v *Vault) Record(ctx context.Context, notarized state.NotarizedTransition) error {
	if err := notarized.Verify(); err != nil {
		return fmt.Errorf("record notarized transition: %w", err)
	}

	id, err := notarized.ID()
	if err != nil {
		return err
	}

	if !slices.ContainsFunc(notarized.Tx.Participants(), v.owner.Equal) {
		return fmt.Errorf("%w: %s in %s", ErrNotParticipant, v.owner, id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.transactions[id]; ok {
		return nil
	}

	v.transactions[id] = notarized

	for _, in := range notarized.Tx.Inputs {
		v.consumed[in.Ref] = id

		if current, ok := v.unconsumed[in.State.LinearID]; ok && current.Ref == in.Ref {
			delete(v.unconsumed, in.State.LinearID)
		}
	}

	produced := 0

	for i, out := range notarized.Tx.Outputs {
		obligation, ok := out.AsObligation()
		if !ok || !obligation.IsParticipant(v.owner) {
			continue
		}

		ref := state.StateRef{TxID: id, Index: i}
		if _, spent := v.consumed[ref]; spent {
			continue
		}

		v.unconsumed[obligation.LinearID] = state.StateAndRef{Ref: ref, State: obligation}
		produced++
	}

	v.logger.Log(ctx, log.LevelDebug, "transition recorded",
		log.TxID(id), log.Int("inputs", len(notarized.Tx.Inputs)), log.Int("tracked_outputs", produced))

	return nil
}

// Unconsumed returns the current version of the obligation linearID.
func (v *Vault) Unconsumed(linearID string) (state.StateAndRef, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	sar, ok := v.unconsumed[linearID]
	if !ok {
		return state.StateAndRef{}, fmt.Errorf("%w: obligation %s", ErrNotFound, linearID)
	}

	return sar, nil
}

// Transaction returns the notarized transition id.
func (v *Vault) Transaction(id string) (state.NotarizedTransition, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	notarized, ok := v.transactions[id]
	if !ok {
		return state.NotarizedTransition{}, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}

	return notarized, nil
}

// Obligations lists the unconsumed obligations ordered by linear id.
func (v *Vault) Obligations() []state.StateAndRef {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]state.StateAndRef, 0, len(v.unconsumed))
	for _, sar := range v.unconsumed {
		out = append(out, sar)
	}

	slices.SortFunc(out, func(a, b state.StateAndRef) int {
		return strings.Compare(a.State.LinearID, b.State.LinearID)
	})

	return out
}
