package notary

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/identity"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/state"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNilIdentity is returned when a Notary is built without an identity.
	ErrNilIdentity = errors.New("notary identity is required")
	// ErrNilStore is returned when a Notary is built without a store.
	ErrNilStore = errors.New("notary store is required")
)

// Service finalizes fully signed transitions.
type Service interface {
	Notarize(ctx context.Context, stx state.SignedTransition) (state.NotarizedTransition, error)
}

// Notary is the in-process Service.
type Notary struct {
	identity *identity.Identity
	store    Store
	logger   log.Logger
}

var _ Service = (*Notary)(nil)

// Option configures a Notary.
type Option func(*Notary)

// WithLogger sets the notary logger.
func WithLogger(logger log.Logger) Option {
	return func(n *Notary) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New builds a notary signing with id and recording consumed inputs in store.
func New(id *identity.Identity, store Store, opts ...Option) (*Notary, error) {
	if id == nil {
		return nil, ErrNilIdentity
	}

	if store == nil {
		return nil, ErrNilStore
	}

	n := &Notary{identity: id, store: store, logger: log.NewNop()}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n, nil
}

// Party returns the notary's party.
func (n *Notary) Party() state.Party {
	return n.identity.Party()
}

// Notarize checks that stx names this notary and carries every required
// signature, commits its inputs as consumed and signs its digest. Submitting
// the same transition again returns the same result.
func (n *Notary) Notarize(ctx context.Context, stx state.SignedTransition) (state.NotarizedTransition, error) {
	_, tracer, correlationID := iou.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "notary.notarize")
	defer span.End()

	txID, err := stx.ID()
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to compute transition id", err)
		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	span.SetAttributes(attribute.String("iou.tx_id", txID), attribute.Int("iou.inputs", len(stx.Tx.Inputs)))

	logger := n.logger.With(log.TxID(txID), log.String("correlation_id", correlationID))

	if !stx.Tx.Notary.Equal(n.Party()) {
		err := fmt.Errorf("%w: %s", ErrWrongNotary, stx.Tx.Notary)
		logger.Log(ctx, log.LevelWarn, "refusing transition for another notary")
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "notary.wrong_notary", err)

		return state.NotarizedTransition{}, err
	}

	if err := stx.VerifySignatures(); err != nil {
		logger.Log(ctx, log.LevelWarn, "refusing incompletely signed transition", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "notary.invalid_signatures", err)

		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if err := n.store.Commit(ctx, txID, stx.Tx.InputRefs()); err != nil {
		if errors.Is(err, ErrConflict) {
			logger.Log(ctx, log.LevelWarn, "double spend refused", log.Err(err))
			opentelemetry.HandleSpanBusinessErrorEvent(&span, "notary.conflict", err)

			return state.NotarizedTransition{}, err
		}

		logger.Log(ctx, log.LevelError, "failed to commit inputs", log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to commit inputs", err)

		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	digest, err := stx.Tx.Digest()
	if err != nil {
		opentelemetry.HandleSpanError(&span, "Failed to compute digest", err)
		return state.NotarizedTransition{}, err
	}

	logger.Log(ctx, log.LevelInfo, "transition notarized")

	return state.NotarizedTransition{
		SignedTransition: stx,
		NotarySignature:  n.identity.Sign(digest),
	}, nil
}
