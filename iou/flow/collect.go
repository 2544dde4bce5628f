package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou/errgroup"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
)

type rejection struct {
	Reason string `json:"reason"`
}

// collect gathers a signature from every required signer other than the
// node. Sessions run concurrently; the first rejection or timeout cancels
// the others and discards the attempt.
func (n *Node) collect(ctx context.Context, stx state.SignedTransition, logger log.Logger) (state.SignedTransition, error) {
	digest, err := stx.Tx.Digest()
	if err != nil {
		return state.SignedTransition{}, err
	}

	pending := stx.MissingSigners()
	counterparties := make([]state.Party, len(pending))

	for i, key := range pending {
		party, err := n.directory.ByKey(key)
		if err != nil {
			return state.SignedTransition{}, err
		}

		counterparties[i] = party
	}

	signatures := make([]state.Signature, len(counterparties))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLogger(logger)
	grp.SetLimit(n.cfg.MaxConcurrentSessions)

	for i, party := range counterparties {
		grp.Go(func() error {
			// A slot may free up after another session already failed.
			if err := grpCtx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return &SessionTimeoutError{Party: party, Timeout: n.cfg.SessionTimeout}
				}

				return fmt.Errorf("session with %s not opened: %w", party.Name, err)
			}

			sig, err := n.requestSignature(grpCtx, party, stx, digest, logger)
			if err != nil {
				return err
			}

			signatures[i] = sig

			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return state.SignedTransition{}, err
	}

	for _, sig := range signatures {
		stx = stx.WithSignature(sig)
	}

	if err := stx.VerifySignatures(); err != nil {
		return state.SignedTransition{}, err
	}

	logger.Log(ctx, log.LevelDebug, "signatures collected", log.String("state", string(StateCollected)),
		log.Int("counterparties", len(counterparties)))

	return stx, nil
}

// requestSignature runs the initiator side of one session.
func (n *Node) requestSignature(ctx context.Context, party state.Party, stx state.SignedTransition, digest []byte, logger log.Logger) (state.Signature, error) {
	logger = logger.With(log.String("counterparty", party.Name))
	fsm := newSessionFSM(StateInitiated, logger, n.metrics)

	ctx, cancel := context.WithTimeout(ctx, n.cfg.SessionTimeout)
	defer cancel()

	fail := func(err error) (state.Signature, error) {
		if errors.Is(err, transport.ErrTimeout) {
			_ = fsm.move(ctx, StateTimedOut)
			return state.Signature{}, &SessionTimeoutError{Party: party, Timeout: n.cfg.SessionTimeout}
		}

		_ = fsm.move(ctx, StateFailed)

		return state.Signature{}, err
	}

	session, err := n.transport.Open(ctx, party)
	if err != nil {
		return fail(fmt.Errorf("open session with %s: %w", party.Name, err))
	}

	defer session.Close()

	proposal, err := transport.NewMessage(transport.KindProposal, stx)
	if err != nil {
		return fail(err)
	}

	if err := session.Send(ctx, proposal); err != nil {
		return fail(fmt.Errorf("send proposal to %s: %w", party.Name, err))
	}

	if err := fsm.move(ctx, StateSent); err != nil {
		return state.Signature{}, err
	}

	reply, err := session.Receive(ctx)
	if err != nil {
		return fail(err)
	}

	switch reply.Kind {
	case transport.KindSignature:
		var sig state.Signature
		if err := reply.Decode(&sig); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrProtocol, err))
		}

		if !state.VerifySignature(party.OwningKey, digest, sig) {
			return fail(fmt.Errorf("%w: %s", ErrInvalidCounterpartySignature, party.Name))
		}

		if err := fsm.move(ctx, StateSigned); err != nil {
			return state.Signature{}, err
		}

		return sig, nil
	case transport.KindRejection:
		var r rejection
		if err := reply.Decode(&r); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrProtocol, err))
		}

		_ = fsm.move(ctx, StateRejected)

		return state.Signature{}, &CounterpartyRejectionError{Party: party, Reason: r.Reason}
	default:
		return fail(fmt.Errorf("%w: unexpected %s from %s", ErrProtocol, reply.Kind, party.Name))
	}
}
