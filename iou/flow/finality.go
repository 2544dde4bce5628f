package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-iou/iou/backoff"
	"github.com/LerianStudio/lib-iou/iou/errgroup"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
)

// finalize notarizes a fully signed transition, records it and hands it to
// every other participant.
func (n *Node) finalize(ctx context.Context, stx state.SignedTransition, logger log.Logger) (state.NotarizedTransition, error) {
	if err := stx.VerifySignatures(); err != nil {
		return state.NotarizedTransition{}, err
	}

	notarizeCtx, cancel := context.WithTimeout(ctx, n.cfg.NotarizeTimeout)
	defer cancel()

	start := time.Now()
	notarized, err := n.notary.Notarize(notarizeCtx, stx)
	elapsed := time.Since(start)

	if err != nil {
		n.metrics.RecordNotarization(ctx, elapsed, outcomeOf(err))

		if errors.Is(err, ErrNotarizationConflict) {
			return state.NotarizedTransition{}, err
		}

		return state.NotarizedTransition{}, fmt.Errorf("notarize: %w", err)
	}

	n.metrics.RecordNotarization(ctx, elapsed, opentelemetry.OutcomeFinalized)

	if err := notarized.Verify(); err != nil {
		return state.NotarizedTransition{}, fmt.Errorf("notarize: %w", err)
	}

	if !notarized.Tx.Notary.Equal(stx.Tx.Notary) || notarized.NotarySignature.By != stx.Tx.Notary.OwningKey {
		return state.NotarizedTransition{}, fmt.Errorf("notarize: %w", state.ErrWrongNotary)
	}

	logger.Log(ctx, log.LevelInfo, "transition notarized", log.Duration("elapsed", elapsed))

	if err := n.vault.Record(ctx, notarized); err != nil {
		logger.Log(ctx, log.LevelError, "failed to record notarized transition", log.Err(err))
	}

	n.distribute(ctx, notarized, logger)

	return notarized, nil
}

// distribute sends the notarized transition to every participant but the
// node. Delivery faults are retried and logged; they never undo finality.
func (n *Node) distribute(ctx context.Context, notarized state.NotarizedTransition, logger log.Logger) {
	var recipients []state.Party

	for _, party := range notarized.Tx.Participants() {
		if !party.Equal(n.Party()) {
			recipients = append(recipients, party)
		}
	}

	if len(recipients) == 0 {
		return
	}

	msg, err := transport.NewMessage(transport.KindFinalized, notarized)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to encode finalized transition", log.Err(err))
		return
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.DeliveryTimeout)
	defer cancel()

	grp := &errgroup.Group{}
	grp.SetLogger(logger)
	grp.SetLimit(n.cfg.MaxConcurrentSessions)

	for _, party := range recipients {
		grp.Go(func() error {
			err := backoff.Retry(deliverCtx, n.cfg.deliveryPolicy(), func(ctx context.Context) error {
				return n.deliver(ctx, party, msg)
			}, func(attempt int, err error, wait time.Duration) {
				logger.Log(ctx, log.LevelWarn, "retrying delivery",
					log.String("recipient", party.Name), log.Int("attempt", attempt),
					log.Duration("wait", wait), log.Err(err))
			})

			n.metrics.RecordDelivery(ctx, err == nil)

			if err != nil {
				logger.Log(ctx, log.LevelWarn, "participant unreachable, finalized transition not delivered",
					log.String("recipient", party.Name), log.Err(err))
			}

			return nil
		})
	}

	_ = grp.Wait()
}

func (n *Node) deliver(ctx context.Context, party state.Party, msg transport.Message) error {
	session, err := n.transport.Open(ctx, party)
	if err != nil {
		return err
	}

	defer session.Close()

	return session.Send(ctx, msg)
}
