package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/contract"
	"github.com/LerianStudio/lib-iou/iou/identity"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/notary"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
	"github.com/LerianStudio/lib-iou/iou/vault"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNilIdentity is returned when a Node is built without an identity.
	ErrNilIdentity = errors.New("node identity is required")
	// ErrNilDirectory is returned when a Node is built without a directory.
	ErrNilDirectory = errors.New("node directory is required")
	// ErrNilTransport is returned when a Node is built without a transport.
	ErrNilTransport = errors.New("node transport is required")
	// ErrNilNotary is returned when a Node is built without a notary service.
	ErrNilNotary = errors.New("node notary service is required")
)

// Node is one party's endpoint on the ledger. It initiates transitions and
// answers the sessions other parties open with it.
type Node struct {
	cfg       Config
	identity  *identity.Identity
	directory *identity.Directory
	transport transport.Transport
	notary    notary.Service
	vault     *vault.Vault
	policy    contract.Policy
	selector  NotarySelector
	metrics   *opentelemetry.FlowMetrics
	logger    log.Logger
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(logger log.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithVault sets the vault the node records into.
func WithVault(v *vault.Vault) Option {
	return func(n *Node) {
		if v != nil {
			n.vault = v
		}
	}
}

// WithPolicy sets the check the node runs before countersigning.
func WithPolicy(policy contract.Policy) Option {
	return func(n *Node) {
		if policy != nil {
			n.policy = policy
		}
	}
}

// WithNotarySelector replaces FirstNotary.
func WithNotarySelector(selector NotarySelector) Option {
	return func(n *Node) {
		if selector != nil {
			n.selector = selector
		}
	}
}

// WithMetrics sets the flow instruments.
func WithMetrics(metrics *opentelemetry.FlowMetrics) Option {
	return func(n *Node) {
		n.metrics = metrics
	}
}

// NewNode wires a node from its collaborators.
func NewNode(cfg Config, id *identity.Identity, directory *identity.Directory, t transport.Transport, notarySvc notary.Service, opts ...Option) (*Node, error) {
	switch {
	case id == nil:
		return nil, ErrNilIdentity
	case directory == nil:
		return nil, ErrNilDirectory
	case t == nil:
		return nil, ErrNilTransport
	case notarySvc == nil:
		return nil, ErrNilNotary
	}

	n := &Node{
		cfg:       cfg.withDefaults(),
		identity:  id,
		directory: directory,
		transport: t,
		notary:    notarySvc,
		policy:    contract.RequireObligationOutputs,
		selector:  FirstNotary,
		logger:    log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	if n.vault == nil {
		n.vault = vault.New(id.Party(), n.logger)
	}

	n.logger = n.logger.With(log.Party(id.Party().Name))

	return n, nil
}

// Party returns the node's party.
func (n *Node) Party() state.Party {
	return n.identity.Party()
}

// Vault returns the node's committed record.
func (n *Node) Vault() *vault.Vault {
	return n.vault
}

// Issue records a new obligation. The node must be its lender or borrower.
func (n *Node) Issue(ctx context.Context, obligation state.Obligation) (state.NotarizedTransition, error) {
	return n.run(ctx, state.CommandIssue, func() (state.Transition, error) {
		return n.assembleIssue(obligation)
	})
}

// Transfer moves the obligation linearID to newLender.
func (n *Node) Transfer(ctx context.Context, linearID string, newLender state.Party) (state.NotarizedTransition, error) {
	return n.run(ctx, state.CommandTransfer, func() (state.Transition, error) {
		return n.assembleTransfer(linearID, newLender)
	})
}

// Settle pays amount off the obligation linearID.
func (n *Node) Settle(ctx context.Context, linearID string, amount state.Amount) (state.NotarizedTransition, error) {
	return n.run(ctx, state.CommandSettle, func() (state.Transition, error) {
		return n.assembleSettle(linearID, amount)
	})
}

// run drives one attempt: assemble, validate, sign, collect, finalize.
func (n *Node) run(ctx context.Context, command state.CommandType, assemble func() (state.Transition, error)) (state.NotarizedTransition, error) {
	_, tracer, correlationID := iou.NewTrackingFromContext(ctx)
	ctx = iou.ContextWithCorrelationID(ctx, correlationID)

	ctx, span := tracer.Start(ctx, "flow."+strings.ToLower(string(command)))
	defer span.End()

	logger := n.logger.With(log.String("command", string(command)), log.String("correlation_id", correlationID))

	tx, err := assemble()
	if err != nil {
		logger.Log(ctx, log.LevelWarn, "failed to assemble transition", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "flow.assemble_failed", err)
		n.metrics.RecordAttempt(ctx, string(command), opentelemetry.OutcomeInvalid)

		return state.NotarizedTransition{}, err
	}

	stx, err := n.prepare(tx)
	if err != nil {
		logger.Log(ctx, log.LevelWarn, "transition refused locally", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "flow.validation_failed", err)
		n.metrics.RecordAttempt(ctx, string(command), opentelemetry.OutcomeInvalid)

		return state.NotarizedTransition{}, err
	}

	txID, err := stx.ID()
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to identify transition", log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to identify transition", err)
		n.metrics.RecordAttempt(ctx, string(command), opentelemetry.OutcomeFailed)

		return state.NotarizedTransition{}, err
	}

	logger = logger.With(log.TxID(txID))
	span.SetAttributes(attribute.String("iou.tx_id", txID))

	logger.Log(ctx, log.LevelInfo, "collecting signatures", log.Int("signers", len(stx.Tx.RequiredSigners())))

	stx, err = n.collect(ctx, stx, logger)
	if err != nil {
		outcome := outcomeOf(err)
		logger.Log(ctx, log.LevelWarn, "signature collection failed", log.String("outcome", outcome), log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "flow.collection_failed", err)
		n.metrics.RecordAttempt(ctx, string(command), outcome)

		return state.NotarizedTransition{}, err
	}

	notarized, err := n.finalize(ctx, stx, logger)
	if err != nil {
		outcome := outcomeOf(err)
		if outcome == opentelemetry.OutcomeFailed {
			opentelemetry.HandleSpanError(&span, "Failed to finalize transition", err)
		} else {
			opentelemetry.HandleSpanBusinessErrorEvent(&span, "flow.finality_failed", err)
		}

		logger.Log(ctx, log.LevelWarn, "finality failed", log.String("outcome", outcome), log.Err(err))
		n.metrics.RecordAttempt(ctx, string(command), outcome)

		return state.NotarizedTransition{}, err
	}

	logger.Log(ctx, log.LevelInfo, "transition finalized")
	n.metrics.RecordAttempt(ctx, string(command), opentelemetry.OutcomeFinalized)

	return notarized, nil
}

func outcomeOf(err error) string {
	var validation *contract.ValidationError

	switch {
	case errors.As(err, &validation):
		return opentelemetry.OutcomeInvalid
	case errors.Is(err, ErrCounterpartyRejected):
		return opentelemetry.OutcomeRejected
	case errors.Is(err, ErrSessionTimeout):
		return opentelemetry.OutcomeTimedOut
	case errors.Is(err, ErrNotarizationConflict):
		return opentelemetry.OutcomeConflict
	default:
		return opentelemetry.OutcomeFailed
	}
}
