//go:build unit

package notary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-iou/iou/circuitbreaker"
	"github.com/LerianStudio/lib-iou/iou/identity"
	iouredis "github.com/LerianStudio/lib-iou/iou/redis"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	alice, bob, notary *identity.Identity
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	return fixture{
		alice:  newIdentity(t, "alice"),
		bob:    newIdentity(t, "bob"),
		notary: newIdentity(t, "notary"),
	}
}

func newIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()

	id, err := identity.New(name)
	require.NoError(t, err)

	return id
}

func signAll(t *testing.T, tx state.Transition, signers ...*identity.Identity) state.SignedTransition {
	t.Helper()

	stx := state.NewSignedTransition(tx)

	for _, signer := range signers {
		sig, err := signer.SignTransition(tx)
		require.NoError(t, err)

		stx = stx.WithSignature(sig)
	}

	return stx
}

func (f fixture) issue(t *testing.T) (state.SignedTransition, state.StateAndRef) {
	t.Helper()

	obligation := state.NewObligation(f.alice.Party(), f.bob.Party(), state.AmountOf(10, "USD"))
	tx := state.Transition{
		Outputs:  []state.Output{state.ObligationOutput(obligation)},
		Commands: []state.Command{state.IssueCommand(f.alice.Key(), f.bob.Key())},
		Notary:   f.notary.Party(),
	}

	stx := signAll(t, tx, f.alice, f.bob)

	id, err := stx.ID()
	require.NoError(t, err)

	return stx, state.StateAndRef{Ref: state.StateRef{TxID: id, Index: 0}, State: obligation}
}

func (f fixture) transfer(t *testing.T, input state.StateAndRef, newLender *identity.Identity) state.SignedTransition {
	t.Helper()

	tx := state.Transition{
		Inputs:   []state.StateAndRef{input},
		Outputs:  []state.Output{state.ObligationOutput(input.State.WithNewLender(newLender.Party()))},
		Commands: []state.Command{state.TransferCommand(f.alice.Key(), f.bob.Key(), newLender.Key())},
		Notary:   f.notary.Party(),
	}

	return signAll(t, tx, f.alice, f.bob, newLender)
}

func newNotary(t *testing.T, f fixture, store Store) *Notary {
	t.Helper()

	n, err := New(f.notary, store)
	require.NoError(t, err)

	return n
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, NewMemoryStore())
	assert.ErrorIs(t, err, ErrNilIdentity)

	_, err = New(newIdentity(t, "notary"), nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestNotarize_SignsFullySignedTransition(t *testing.T) {
	f := newFixture(t)
	n := newNotary(t, f, NewMemoryStore())

	stx, _ := f.issue(t)

	notarized, err := n.Notarize(context.Background(), stx)
	require.NoError(t, err)
	require.NoError(t, notarized.Verify())
	assert.Equal(t, f.notary.Key(), notarized.NotarySignature.By)

	again, err := n.Notarize(context.Background(), stx)
	require.NoError(t, err)
	assert.Equal(t, notarized, again)
}

func TestNotarize_RefusesWrongNotary(t *testing.T) {
	f := newFixture(t)
	other := newIdentity(t, "other-notary")
	n := newNotary(t, fixture{alice: f.alice, bob: f.bob, notary: other}, NewMemoryStore())

	stx, _ := f.issue(t)

	_, err := n.Notarize(context.Background(), stx)
	assert.ErrorIs(t, err, ErrWrongNotary)
}

func TestNotarize_RefusesMissingSignatures(t *testing.T) {
	f := newFixture(t)
	n := newNotary(t, f, NewMemoryStore())

	stx, _ := f.issue(t)
	partial := signAll(t, stx.Tx, f.alice)

	_, err := n.Notarize(context.Background(), partial)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, state.ErrMissingSignatures)
}

func TestNotarize_RefusesDoubleSpend(t *testing.T) {
	f := newFixture(t)
	store := NewMemoryStore()
	n := newNotary(t, f, store)

	issued, input := f.issue(t)
	_, err := n.Notarize(context.Background(), issued)
	require.NoError(t, err)

	first := f.transfer(t, input, newIdentity(t, "carol"))
	second := f.transfer(t, input, newIdentity(t, "dave"))

	_, err = n.Notarize(context.Background(), first)
	require.NoError(t, err)

	_, err = n.Notarize(context.Background(), second)
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	firstID, err := first.ID()
	require.NoError(t, err)
	assert.Equal(t, input.Ref, conflict.Ref)
	assert.Equal(t, firstID, conflict.ConsumedBy)

	by, ok, err := store.ConsumedBy(context.Background(), input.Ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, firstID, by)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := iouredis.NewFromUniversal(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, "notary")
	require.NoError(t, err)

	return store
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore(nil, "notary")
	assert.ErrorIs(t, err, iouredis.ErrNilClient)

	mr := miniredis.RunT(t)
	client, err := iouredis.NewFromUniversal(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	require.NoError(t, err)

	_, err = NewRedisStore(client, "  ")
	assert.ErrorIs(t, err, ErrEmptyNotaryName)
}

func TestStores_CommitIsAllOrNothing(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := state.StateRef{TxID: "issue-a", Index: 0}
			b := state.StateRef{TxID: "issue-b", Index: 0}

			require.NoError(t, store.Commit(ctx, "tx-1", []state.StateRef{a}))
			require.NoError(t, store.Commit(ctx, "tx-1", []state.StateRef{a}))
			require.NoError(t, store.Commit(ctx, "tx-2", nil))

			err := store.Commit(ctx, "tx-2", []state.StateRef{b, a})
			require.ErrorIs(t, err, ErrConflict)

			_, ok, err := store.ConsumedBy(ctx, b)
			require.NoError(t, err)
			assert.False(t, ok, "no ref may be consumed by a refused commit")
		})
	}
}

func TestNotarize_ConcurrentDoubleSpendAcceptsOne(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis":  func(t *testing.T) Store { return newRedisStore(t) },
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			n := newNotary(t, f, build(t))

			issued, input := f.issue(t)
			_, err := n.Notarize(context.Background(), issued)
			require.NoError(t, err)

			const attempts = 8

			candidates := make([]state.SignedTransition, attempts)
			for i := range candidates {
				candidates[i] = f.transfer(t, input, newIdentity(t, fmt.Sprintf("lender-%d", i)))
			}

			var (
				wg        sync.WaitGroup
				accepted  atomic.Int32
				conflicts atomic.Int32
			)

			for _, stx := range candidates {
				wg.Add(1)

				go func() {
					defer wg.Done()

					_, err := n.Notarize(context.Background(), stx)

					switch {
					case err == nil:
						accepted.Add(1)
					case errors.Is(err, ErrConflict):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}

			wg.Wait()

			assert.Equal(t, int32(1), accepted.Load())
			assert.Equal(t, int32(attempts-1), conflicts.Load())
		})
	}
}

func startServer(t *testing.T, f fixture, service Service) (*transport.MemoryNetwork, *Client) {
	t.Helper()

	network := transport.NewMemoryNetwork()

	notaryT, err := network.Join(f.notary.Party())
	require.NoError(t, err)

	clientT, err := network.Join(f.alice.Party())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- NewServer(service, notaryT, WithRequestTimeout(time.Second), WithConcurrency(4)).Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	return network, NewClient(clientT, f.notary.Party())
}

func TestClientServer(t *testing.T) {
	f := newFixture(t)
	n := newNotary(t, f, NewMemoryStore())
	_, client := startServer(t, f, n)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	issued, input := f.issue(t)

	notarized, err := client.Notarize(ctx, issued)
	require.NoError(t, err)
	require.NoError(t, notarized.Verify())

	_, err = client.Notarize(ctx, f.transfer(t, input, newIdentity(t, "carol")))
	require.NoError(t, err)

	_, err = client.Notarize(ctx, f.transfer(t, input, newIdentity(t, "dave")))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, input.Ref, conflict.Ref)

	_, err = client.Notarize(ctx, signAll(t, issued.Tx, f.alice))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClient_UnreachableNotary(t *testing.T) {
	f := newFixture(t)
	network := transport.NewMemoryNetwork()

	clientT, err := network.Join(f.alice.Party())
	require.NoError(t, err)

	stx, _ := f.issue(t)

	_, err = NewClient(clientT, f.notary.Party()).Notarize(context.Background(), stx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, transport.ErrUnknownParty)
}

// forgingNotary returns a notarization signed by the wrong key.
type forgingNotary struct {
	forger *identity.Identity
}

func (n forgingNotary) Notarize(_ context.Context, stx state.SignedTransition) (state.NotarizedTransition, error) {
	digest, err := stx.Tx.Digest()
	if err != nil {
		return state.NotarizedTransition{}, err
	}

	return state.NotarizedTransition{SignedTransition: stx, NotarySignature: n.forger.Sign(digest)}, nil
}

func TestClient_RejectsForeignNotarySignature(t *testing.T) {
	f := newFixture(t)
	_, client := startServer(t, f, forgingNotary{forger: newIdentity(t, "forger")})

	stx, _ := f.issue(t)

	_, err := client.Notarize(context.Background(), stx)
	assert.ErrorIs(t, err, state.ErrWrongNotary)
}

type flakyService struct {
	err   error
	calls atomic.Int32
}

func (s *flakyService) Notarize(context.Context, state.SignedTransition) (state.NotarizedTransition, error) {
	s.calls.Add(1)
	return state.NotarizedTransition{}, s.err
}

func TestBreakerService(t *testing.T) {
	cfg := circuitbreaker.Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
		FailureRatio:        1,
		MinRequests:         100,
	}

	t.Run("conflicts keep the breaker closed", func(t *testing.T) {
		manager := circuitbreaker.NewManager(nil)
		next := &flakyService{err: &ConflictError{Ref: state.StateRef{TxID: "x"}, ConsumedBy: "y"}}
		svc := NewBreakerService(next, manager, "notary", cfg)

		for range 5 {
			_, err := svc.Notarize(context.Background(), state.SignedTransition{})
			assert.ErrorIs(t, err, ErrConflict)
		}

		assert.Equal(t, circuitbreaker.StateClosed, manager.GetState("notary"))
		assert.Equal(t, int32(5), next.calls.Load())
	})

	t.Run("transport faults open the breaker", func(t *testing.T) {
		manager := circuitbreaker.NewManager(nil)
		next := &flakyService{err: fmt.Errorf("%w: connection refused", ErrUnavailable)}
		svc := NewBreakerService(next, manager, "notary", cfg)

		for range 2 {
			_, err := svc.Notarize(context.Background(), state.SignedTransition{})
			assert.ErrorIs(t, err, ErrUnavailable)
		}

		_, err := svc.Notarize(context.Background(), state.SignedTransition{})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
		assert.Equal(t, int32(2), next.calls.Load())
	})
}

func TestIsHealthyOutcome(t *testing.T) {
	assert.True(t, IsHealthyOutcome(nil))
	assert.True(t, IsHealthyOutcome(&ConflictError{}))
	assert.True(t, IsHealthyOutcome(fmt.Errorf("%w: x", ErrWrongNotary)))
	assert.False(t, IsHealthyOutcome(ErrUnavailable))
	assert.False(t, IsHealthyOutcome(errors.New("boom")))
}
