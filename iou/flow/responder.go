package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/contract"
	"github.com/LerianStudio/lib-iou/iou/errgroup"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
	"go.opentelemetry.io/otel/trace"
)

// Serve answers sessions opened with the node until ctx is done or the
// transport closes.
func (n *Node) Serve(ctx context.Context) error {
	grp := &errgroup.Group{}
	grp.SetLogger(n.logger)
	grp.SetLimit(n.cfg.MaxConcurrentResponders)

	for {
		session, err := n.transport.Accept(ctx)
		if err != nil {
			waitErr := grp.Wait()

			if ctx.Err() != nil || errors.Is(err, transport.ErrTransportClosed) {
				return waitErr
			}

			return errors.Join(fmt.Errorf("accept: %w", err), waitErr)
		}

		grp.Go(func() error {
			n.HandleSession(ctx, session)
			return nil
		})
	}
}

// HandleSession answers one inbound session: a proposal to countersign or a
// notarized transition to record.
func (n *Node) HandleSession(ctx context.Context, session transport.Session) {
	defer session.Close()

	_, tracer, _ := iou.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "flow.respond")
	defer span.End()

	logger := n.logger.With(log.String("session_id", session.ID()), log.String("counterparty", session.Counterparty().Name))

	receiveCtx, cancel := context.WithTimeout(ctx, n.cfg.SessionTimeout)
	msg, err := session.Receive(receiveCtx)

	cancel()

	if err != nil {
		logger.Log(ctx, log.LevelWarn, "no message on inbound session", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "flow.respond.no_message", err)

		return
	}

	switch msg.Kind {
	case transport.KindProposal:
		n.respondToProposal(ctx, session, msg, logger, &span)
	case transport.KindFinalized:
		n.receiveFinalized(ctx, msg, logger, &span)
	default:
		logger.Log(ctx, log.LevelWarn, "unexpected inbound message", log.String("kind", string(msg.Kind)))
	}
}

func (n *Node) respondToProposal(ctx context.Context, session transport.Session, msg transport.Message, logger log.Logger, span *trace.Span) {
	fsm := newSessionFSM(StateVerifying, logger, n.metrics)

	var stx state.SignedTransition

	reply, err := func() (transport.Message, error) {
		if err := msg.Decode(&stx); err != nil {
			_ = fsm.move(ctx, StateRejected)

			return transport.NewMessage(transport.KindRejection, rejection{Reason: err.Error()})
		}

		if err := n.review(stx, session.Counterparty()); err != nil {
			logger.Log(ctx, log.LevelInfo, "declining proposal", log.Err(err))
			opentelemetry.HandleSpanBusinessErrorEvent(span, "flow.respond.declined", err)

			_ = fsm.move(ctx, StateRejected)

			return transport.NewMessage(transport.KindRejection, rejection{Reason: err.Error()})
		}

		sig, err := n.identity.SignTransition(stx.Tx)
		if err != nil {
			return transport.Message{}, err
		}

		_ = fsm.move(ctx, StateSigned)

		return transport.NewMessage(transport.KindSignature, sig)
	}()
	if err != nil {
		_ = fsm.move(ctx, StateFailed)
		logger.Log(ctx, log.LevelError, "failed to answer proposal", log.Err(err))
		opentelemetry.HandleSpanError(span, "Failed to answer proposal", err)

		return
	}

	if err := session.Send(ctx, reply); err != nil {
		logger.Log(ctx, log.LevelWarn, "failed to deliver answer", log.String("kind", string(reply.Kind)), log.Err(err))
		opentelemetry.HandleSpanError(span, "Failed to deliver answer", err)
	}
}

// review re-validates a proposal independently of the initiator.
func (n *Node) review(stx state.SignedTransition, initiator state.Party) error {
	if err := contract.Verify(stx.Tx); err != nil {
		return err
	}

	if err := contract.RequireFreshIssue(stx.Tx); err != nil {
		return err
	}

	if !stx.Tx.RequiredSigners().Contains(n.identity.Key()) {
		return fmt.Errorf("%w: %s", ErrNotParticipant, n.Party())
	}

	if !stx.SignedBy().Contains(initiator.OwningKey) {
		return fmt.Errorf("%w: initiator %s has not signed", state.ErrMissingSignatures, initiator.Name)
	}

	if err := stx.VerifySignatures(stx.MissingSigners()...); err != nil {
		return err
	}

	if !slices.ContainsFunc(n.directory.Notaries(), stx.Tx.Notary.Equal) {
		return fmt.Errorf("%w: %s", ErrUnknownNotary, stx.Tx.Notary)
	}

	return n.policy(stx.Tx)
}

func (n *Node) receiveFinalized(ctx context.Context, msg transport.Message, logger log.Logger, span *trace.Span) {
	var notarized state.NotarizedTransition
	if err := msg.Decode(&notarized); err != nil {
		logger.Log(ctx, log.LevelWarn, "undecodable finalized transition", log.Err(err))
		return
	}

	if err := n.vault.Record(ctx, notarized); err != nil {
		logger.Log(ctx, log.LevelWarn, "refusing finalized transition", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(span, "flow.respond.finalized_refused", err)

		return
	}

	txID, err := notarized.ID()
	if err != nil {
		logger.Log(ctx, log.LevelWarn, "finalized transition recorded without id", log.Err(err))
		return
	}

	logger.Log(ctx, log.LevelInfo, "finalized transition recorded", log.TxID(txID))
}
