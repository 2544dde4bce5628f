package notary

import (
	"context"
	"sync"

	"github.com/LerianStudio/lib-iou/iou/state"
)

// Store is the notary's record of consumed inputs.
type Store interface {
	// Commit marks every ref as consumed by txID, or none of them. It
	// returns a *ConflictError when a ref is held by a different
	// transition; committing the same txID again succeeds.
	Commit(ctx context.Context, txID string, refs []state.StateRef) error
	// ConsumedBy returns the transition that consumed ref, if any.
	ConsumedBy(ctx context.Context, ref state.StateRef) (string, bool, error)
}

// MemoryStore keeps consumed inputs in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	consumed map[state.StateRef]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{consumed: make(map[state.StateRef]string)}
}

func (s *MemoryStore) Commit(_ context.Context, txID string, refs []state.StateRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		if by, ok := s.consumed[ref]; ok && by != txID {
			return &ConflictError{Ref: ref, ConsumedBy: by}
		}
	}

	for _, ref := range refs {
		s.consumed[ref] = txID
	}

	return nil
}

func (s *MemoryStore) ConsumedBy(_ context.Context, ref state.StateRef) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	by, ok := s.consumed[ref]

	return by, ok, nil
}
