package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-iou/iou/state"
)

var (
	// ErrUnknownParty is returned when a name or key is not in the directory.
	ErrUnknownParty = errors.New("unknown party")
	// ErrDuplicateParty is returned when a name is registered with a different key.
	ErrDuplicateParty = errors.New("party name already registered with another key")
)

// Directory is the network map shared by the nodes of one network.
type Directory struct {
	mu       sync.RWMutex
	byName   map[string]state.Party
	byKey    map[state.PublicKey]state.Party
	notaries []state.Party
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]state.Party),
		byKey:  make(map[state.PublicKey]state.Party),
	}
}

// Register adds party. Registering the same party twice is a no-op.
func (d *Directory) Register(party state.Party) error {
	if strings.TrimSpace(party.Name) == "" {
		return ErrEmptyName
	}

	if _, err := party.OwningKey.Bytes(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byName[party.Name]; ok && !existing.Equal(party) {
		return fmt.Errorf("%w: %s", ErrDuplicateParty, party.Name)
	}

	d.byName[party.Name] = party
	d.byKey[party.OwningKey] = party

	return nil
}

// RegisterNotary registers party and lists it as a notary.
func (d *Directory) RegisterNotary(party state.Party) error {
	if err := d.Register(party); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !slices.ContainsFunc(d.notaries, party.Equal) {
		d.notaries = append(d.notaries, party)
	}

	return nil
}

// Resolve looks a party up by name.
func (d *Directory) Resolve(name string) (state.Party, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	party, ok := d.byName[name]
	if !ok {
		return state.Party{}, fmt.Errorf("%w: %s", ErrUnknownParty, name)
	}

	return party, nil
}

// ByKey looks a party up by owning key.
func (d *Directory) ByKey(key state.PublicKey) (state.Party, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	party, ok := d.byKey[key]
	if !ok {
		return state.Party{}, fmt.Errorf("%w: key %s", ErrUnknownParty, key.Short())
	}

	return party, nil
}

// Notaries lists the registered notaries in registration order.
func (d *Directory) Notaries() []state.Party {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.notaries)
}
