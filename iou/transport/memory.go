package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/google/uuid"
)

// ErrAlreadyJoined is returned when a key joins a MemoryNetwork twice.
var ErrAlreadyJoined = errors.New("party already joined the network")

const memoryBuffer = 64

// MemoryNetwork connects in-process endpoints by owning key.
type MemoryNetwork struct {
	mu        sync.RWMutex
	endpoints map[state.PublicKey]*MemoryTransport
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: make(map[state.PublicKey]*MemoryTransport)}
}

// Join attaches party to the network and returns its endpoint.
func (n *MemoryNetwork) Join(party state.Party) (*MemoryTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.endpoints[party.OwningKey]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyJoined, party)
	}

	t := &MemoryTransport{
		network: n,
		self:    party,
		accept:  make(chan Session, memoryBuffer),
		done:    make(chan struct{}),
	}
	n.endpoints[party.OwningKey] = t

	return t, nil
}

func (n *MemoryNetwork) endpoint(key state.PublicKey) (*MemoryTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	t, ok := n.endpoints[key]

	return t, ok
}

func (n *MemoryNetwork) leave(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.endpoints[t.self.OwningKey] == t {
		delete(n.endpoints, t.self.OwningKey)
	}
}

// MemoryTransport is one party's endpoint on a MemoryNetwork.
type MemoryTransport struct {
	network   *MemoryNetwork
	self      state.Party
	accept    chan Session
	done      chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*MemoryTransport)(nil)

// Self returns the party owning the endpoint.
func (t *MemoryTransport) Self() state.Party {
	return t.self
}

// Open starts a session with party. The counterparty accepts it when the
// first message arrives.
func (t *MemoryTransport) Open(_ context.Context, party state.Party) (Session, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	peer, ok := t.network.endpoint(party.OwningKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}

	id := uuid.NewString()
	local := newMemorySession(id, party, t)
	remote := newMemorySession(id, t.self, peer)
	local.peer = remote
	remote.peer = local
	local.announce = func(ctx context.Context) error {
		select {
		case peer.accept <- remote:
			return nil
		case <-peer.done:
			return fmt.Errorf("%w: %s", ErrUnknownParty, party)
		case <-ctx.Done():
			return waitErr(ctx)
		}
	}

	return local, nil
}

// Accept waits for a session opened by another party.
func (t *MemoryTransport) Accept(ctx context.Context) (Session, error) {
	select {
	case s := <-t.accept:
		return s, nil
	case <-t.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, waitErr(ctx)
	}
}

// Close detaches the endpoint from the network.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.network.leave(t)
	})

	return nil
}

func (t *MemoryTransport) isClosed() bool {
	return closed(t.done)
}

type memorySession struct {
	id           string
	counterparty state.Party
	owner        *MemoryTransport
	peer         *memorySession
	inbox        chan Message
	done         chan struct{}
	closeOnce    sync.Once
	announce     func(ctx context.Context) error
	announceOnce sync.Once
	announceErr  error
}

func newMemorySession(id string, counterparty state.Party, owner *MemoryTransport) *memorySession {
	return &memorySession{
		id:           id,
		counterparty: counterparty,
		owner:        owner,
		inbox:        make(chan Message, memoryBuffer),
		done:         make(chan struct{}),
	}
}

func (s *memorySession) ID() string { return s.id }

func (s *memorySession) Counterparty() state.Party { return s.counterparty }

func (s *memorySession) Send(ctx context.Context, msg Message) error {
	if closed(s.done) {
		return ErrSessionClosed
	}

	if s.owner.isClosed() {
		return ErrTransportClosed
	}

	if s.announce != nil {
		s.announceOnce.Do(func() { s.announceErr = s.announce(ctx) })

		if s.announceErr != nil {
			return s.announceErr
		}
	}

	if closed(s.peer.done) {
		return fmt.Errorf("%w by %s", ErrSessionClosed, s.counterparty)
	}

	msg.SessionID = s.id
	msg.From = s.owner.self

	select {
	case s.peer.inbox <- msg:
		return nil
	case <-s.peer.done:
		return fmt.Errorf("%w by %s", ErrSessionClosed, s.counterparty)
	case <-ctx.Done():
		return waitErr(ctx)
	}
}

func (s *memorySession) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.done:
		return Message{}, ErrSessionClosed
	case <-s.owner.done:
		return Message{}, ErrTransportClosed
	case <-ctx.Done():
		return Message{}, waitErr(ctx)
	}
}

func (s *memorySession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })

	return nil
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
