package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/LerianStudio/lib-iou/iou/rabbitmq"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueuePrefix prefixes the per-party inbound queue.
const QueuePrefix = "iou."

const (
	headerKind  = "iou-kind"
	contentType = "application/json"
)

// QueueName is the inbound queue of the party owning key.
func QueueName(key state.PublicKey) string {
	return QueuePrefix + string(key)
}

// Channel is the subset of *amqp.Channel used by AMQPTransport.
type Channel interface {
	rabbitmq.ConfirmableChannel
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// AMQPTransport routes sessions through a broker. Every party consumes its
// own queue; messages are published on the default exchange with the
// destination queue as routing key and the session id as correlation id.
type AMQPTransport struct {
	self           state.Party
	queue          string
	publisher      *rabbitmq.ConfirmablePublisher
	logger         log.Logger
	confirmTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*amqpSession
	accept   chan Session

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*AMQPTransport)(nil)

// AMQPOption configures an AMQPTransport.
type AMQPOption func(*AMQPTransport)

// WithLogger sets the transport logger.
func WithLogger(logger log.Logger) AMQPOption {
	return func(t *AMQPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithConfirmTimeout bounds the wait for a broker confirmation per message.
func WithConfirmTimeout(timeout time.Duration) AMQPOption {
	return func(t *AMQPTransport) {
		if timeout > 0 {
			t.confirmTimeout = timeout
		}
	}
}

// NewAMQPTransport declares the inbound queue of self on ch, starts
// consuming it and puts ch in confirm mode for publishing.
func NewAMQPTransport(ctx context.Context, self state.Party, ch Channel, opts ...AMQPOption) (*AMQPTransport, error) {
	if ch == nil {
		return nil, rabbitmq.ErrChannelRequired
	}

	t := &AMQPTransport{
		self:           self,
		queue:          QueueName(self.OwningKey),
		logger:         log.NewNop(),
		confirmTimeout: rabbitmq.DefaultConfirmTimeout,
		sessions:       make(map[string]*amqpSession),
		accept:         make(chan Session, memoryBuffer),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if _, err := ch.QueueDeclare(t.queue, false, true, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", t.queue, err)
	}

	deliveries, err := ch.Consume(t.queue, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", t.queue, err)
	}

	publisher, err := rabbitmq.NewConfirmablePublisherFromChannel(ch,
		rabbitmq.WithLogger(t.logger),
		rabbitmq.WithConfirmTimeout(t.confirmTimeout),
	)
	if err != nil {
		return nil, err
	}

	t.publisher = publisher

	t.logger.Log(ctx, log.LevelInfo, "amqp transport started", log.Party(self.Name), log.String("queue", t.queue))

	go t.dispatch(deliveries)

	return t, nil
}

// Self returns the party owning the transport.
func (t *AMQPTransport) Self() state.Party {
	return t.self
}

// Open starts a session with party. The broker is not consulted, so an
// unreachable party surfaces as a timeout on the first Receive.
func (t *AMQPTransport) Open(_ context.Context, party state.Party) (Session, error) {
	if closed(t.done) {
		return nil, ErrTransportClosed
	}

	if party.OwningKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}

	s := t.register(uuid.NewString(), party)

	return s, nil
}

// Accept waits for a session opened by another party.
func (t *AMQPTransport) Accept(ctx context.Context) (Session, error) {
	select {
	case s := <-t.accept:
		return s, nil
	case <-t.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, waitErr(ctx)
	}
}

// Close stops consuming and closes the channel.
func (t *AMQPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.publisher.Close()
	})

	return t.closeErr
}

func (t *AMQPTransport) register(id string, counterparty state.Party) *amqpSession {
	s := &amqpSession{
		id:           id,
		counterparty: counterparty,
		transport:    t,
		inbox:        make(chan Message, memoryBuffer),
		done:         make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()

	return s
}

func (t *AMQPTransport) forget(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *AMQPTransport) dispatch(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				t.logger.Log(context.Background(), log.LevelWarn, "amqp transport: delivery channel closed", log.String("queue", t.queue))
				_ = t.Close()

				return
			}

			t.route(d)
		case <-t.done:
			return
		}
	}
}

func (t *AMQPTransport) route(d amqp.Delivery) {
	ctx := opentelemetry.ExtractTraceContextFromQueueHeaders(context.Background(), d.Headers)

	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		t.logger.Log(ctx, log.LevelWarn, "amqp transport: dropping undecodable message",
			log.String("message_id", d.MessageId), log.Err(err))

		return
	}

	if msg.SessionID == "" {
		msg.SessionID = d.CorrelationId
	}

	t.logger.Log(ctx, log.LevelDebug, "amqp transport: message received",
		log.String("session_id", msg.SessionID),
		log.String("kind", string(msg.Kind)),
		log.Party(msg.From.Name),
		log.String("trace_id", opentelemetry.GetTraceIDFromContext(ctx)),
	)

	t.mu.Lock()
	s, known := t.sessions[msg.SessionID]
	t.mu.Unlock()

	if !known {
		if !msg.Kind.Initiates() {
			t.logger.Log(ctx, log.LevelWarn, "amqp transport: dropping message for unknown session",
				log.String("session_id", msg.SessionID), log.String("kind", string(msg.Kind)))

			return
		}

		s = t.register(msg.SessionID, msg.From)
	}

	select {
	case s.inbox <- msg:
	case <-s.done:
		return
	case <-t.done:
		return
	}

	if !known {
		select {
		case t.accept <- s:
		case <-t.done:
		}
	}
}

type amqpSession struct {
	id           string
	counterparty state.Party
	transport    *AMQPTransport
	inbox        chan Message
	done         chan struct{}
	closeOnce    sync.Once
}

func (s *amqpSession) ID() string { return s.id }

func (s *amqpSession) Counterparty() state.Party { return s.counterparty }

func (s *amqpSession) Send(ctx context.Context, msg Message) error {
	if closed(s.done) {
		return ErrSessionClosed
	}

	t := s.transport
	if closed(t.done) {
		return ErrTransportClosed
	}

	msg.SessionID = s.id
	msg.From = t.self

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	headers := opentelemetry.PrepareQueueHeaders(ctx, map[string]any{headerKind: string(msg.Kind)})

	err = t.publisher.Publish(ctx, "", QueueName(s.counterparty.OwningKey), false, false, amqp.Publishing{
		ContentType:   contentType,
		CorrelationId: s.id,
		MessageId:     uuid.NewString(),
		ReplyTo:       t.queue,
		Timestamp:     time.Now().UTC(),
		Headers:       amqp.Table(headers),
		Body:          body,
	})
	if err != nil {
		if ctx.Err() != nil {
			return waitErr(ctx)
		}

		return fmt.Errorf("send %s to %s: %w", msg.Kind, s.counterparty, err)
	}

	return nil
}

func (s *amqpSession) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.done:
		return Message{}, ErrSessionClosed
	case <-s.transport.done:
		return Message{}, ErrTransportClosed
	case <-ctx.Done():
		return Message{}, waitErr(ctx)
	}
}

func (s *amqpSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.transport.forget(s.id)
	})

	return nil
}
