package notary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/errgroup"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/LerianStudio/lib-iou/iou/transport"
)

// Failure codes carried by FAILURE replies.
const (
	FailureWrongNotary    = "WRONG_NOTARY"
	FailureInvalidRequest = "INVALID_REQUEST"
	FailureUnavailable    = "UNAVAILABLE"
)

const defaultServerConcurrency = 32

type failure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (f failure) err() error {
	switch f.Code {
	case FailureWrongNotary:
		return fmt.Errorf("%w: %s", ErrWrongNotary, f.Reason)
	case FailureInvalidRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, f.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, f.Reason)
	}
}

func failureOf(err error) failure {
	switch {
	case errors.Is(err, ErrWrongNotary):
		return failure{Code: FailureWrongNotary, Reason: err.Error()}
	case errors.Is(err, ErrInvalidRequest):
		return failure{Code: FailureInvalidRequest, Reason: err.Error()}
	default:
		return failure{Code: FailureUnavailable, Reason: err.Error()}
	}
}

// Client reaches a notary over a transport session.
type Client struct {
	transport transport.Transport
	notary    state.Party
}

var _ Service = (*Client)(nil)

// NewClient returns a Service forwarding to the notary party over t.
func NewClient(t transport.Transport, notary state.Party) *Client {
	return &Client{transport: t, notary: notary}
}

// Notarize sends NOTARIZE and waits for NOTARIZED, CONFLICT or FAILURE. The
// returned notarization is verified before it is handed back.
func (c *Client) Notarize(ctx context.Context, stx state.SignedTransition) (state.NotarizedTransition, error) {
	session, err := c.transport.Open(ctx, c.notary)
	if err != nil {
		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	defer session.Close()

	request, err := transport.NewMessage(transport.KindNotarize, stx)
	if err != nil {
		return state.NotarizedTransition{}, err
	}

	if err := session.Send(ctx, request); err != nil {
		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	reply, err := session.Receive(ctx)
	if err != nil {
		return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	switch reply.Kind {
	case transport.KindNotarized:
		var notarized state.NotarizedTransition
		if err := reply.Decode(&notarized); err != nil {
			return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		if err := checkNotarization(stx, notarized, c.notary); err != nil {
			return state.NotarizedTransition{}, err
		}

		return notarized, nil
	case transport.KindConflict:
		conflict := &ConflictError{}
		if err := reply.Decode(conflict); err != nil {
			return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		return state.NotarizedTransition{}, conflict
	case transport.KindFailure:
		var f failure
		if err := reply.Decode(&f); err != nil {
			return state.NotarizedTransition{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		return state.NotarizedTransition{}, f.err()
	default:
		return state.NotarizedTransition{}, fmt.Errorf("%w: unexpected reply %s", ErrUnavailable, reply.Kind)
	}
}

func checkNotarization(stx state.SignedTransition, notarized state.NotarizedTransition, notary state.Party) error {
	want, err := stx.ID()
	if err != nil {
		return err
	}

	got, err := notarized.ID()
	if err != nil {
		return err
	}

	if want != got {
		return fmt.Errorf("%w: notarized %s, submitted %s", ErrUnavailable, got, want)
	}

	if notarized.NotarySignature.By != notary.OwningKey {
		return state.ErrWrongNotary
	}

	return notarized.Verify()
}

// Server answers NOTARIZE sessions accepted on a transport.
type Server struct {
	service     Service
	transport   transport.Transport
	logger      log.Logger
	timeout     time.Duration
	concurrency int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger log.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout bounds how long a session may take to deliver its request.
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithConcurrency bounds the number of requests handled at once.
func WithConcurrency(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewServer serves service on t.
func NewServer(service Service, t transport.Transport, opts ...ServerOption) *Server {
	s := &Server{
		service:     service,
		transport:   t,
		logger:      log.NewNop(),
		timeout:     30 * time.Second,
		concurrency: defaultServerConcurrency,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Serve accepts sessions until ctx is done or the transport closes.
func (s *Server) Serve(ctx context.Context) error {
	grp := &errgroup.Group{}
	grp.SetLogger(s.logger)
	grp.SetLimit(s.concurrency)

	for {
		session, err := s.transport.Accept(ctx)
		if err != nil {
			waitErr := grp.Wait()

			if ctx.Err() != nil || errors.Is(err, transport.ErrTransportClosed) {
				return waitErr
			}

			return errors.Join(fmt.Errorf("accept: %w", err), waitErr)
		}

		grp.Go(func() error {
			s.Handle(ctx, session)
			return nil
		})
	}
}

// Handle answers a single session.
func (s *Server) Handle(ctx context.Context, session transport.Session) {
	defer session.Close()

	ctx = iou.ContextWithLogger(ctx, s.logger)

	_, tracer, _ := iou.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "notary.server.handle")
	defer span.End()

	logger := s.logger.With(log.String("session_id", session.ID()), log.Party(session.Counterparty().Name))

	receiveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	request, err := session.Receive(receiveCtx)

	cancel()

	if err != nil {
		logger.Log(ctx, log.LevelWarn, "notarization request not received", log.Err(err))
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "notary.request_missing", err)

		return
	}

	reply, err := s.answer(ctx, request)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to build notarization reply", log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to build reply", err)

		return
	}

	if err := session.Send(ctx, reply); err != nil {
		logger.Log(ctx, log.LevelWarn, "failed to deliver notarization reply", log.String("kind", string(reply.Kind)), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to deliver reply", err)
	}
}

func (s *Server) answer(ctx context.Context, request transport.Message) (transport.Message, error) {
	if request.Kind != transport.KindNotarize {
		return transport.NewMessage(transport.KindFailure,
			failure{Code: FailureInvalidRequest, Reason: "unexpected message " + string(request.Kind)})
	}

	var stx state.SignedTransition
	if err := request.Decode(&stx); err != nil {
		return transport.NewMessage(transport.KindFailure, failure{Code: FailureInvalidRequest, Reason: err.Error()})
	}

	notarized, err := s.service.Notarize(ctx, stx)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return transport.NewMessage(transport.KindConflict, conflict)
		}

		return transport.NewMessage(transport.KindFailure, failureOf(err))
	}

	return transport.NewMessage(transport.KindNotarized, notarized)
}
