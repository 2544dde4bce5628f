package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LerianStudio/lib-iou/iou/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher confirm errors.
var (
	ErrChannelRequired        = errors.New("rabbitmq channel is required")
	ErrConfirmModeUnavailable = errors.New("channel does not support confirm mode")
	ErrPublishNacked          = errors.New("message was nacked by broker")
	ErrConfirmTimeout         = errors.New("confirmation timed out")
	ErrPublisherClosed        = errors.New("publisher is closed")
)

const (
	// DefaultConfirmTimeout is the default wait for a broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	confirmChannelBuffer = 256
)

// ConfirmableChannel is the subset of *amqp.Channel the publisher needs.
type ConfirmableChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// ConfirmablePublisher publishes one message at a time and waits for the
// broker to confirm it.
type ConfirmablePublisher struct {
	ch             ConfirmableChannel
	confirms       chan amqp.Confirmation
	closedCh       chan struct{}
	closeOnce      sync.Once
	logger         log.Logger
	confirmTimeout time.Duration
	publishMu      sync.Mutex
	mu             sync.RWMutex
	closed         bool
}

// ConfirmablePublisherOption configures a ConfirmablePublisher.
type ConfirmablePublisherOption func(*ConfirmablePublisher)

// WithLogger sets a structured logger for the publisher.
func WithLogger(logger log.Logger) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if logger != nil {
			pub.logger = logger
		}
	}
}

// WithConfirmTimeout sets the wait for broker confirmation. Non-positive
// values are ignored.
func WithConfirmTimeout(timeout time.Duration) ConfirmablePublisherOption {
	return func(pub *ConfirmablePublisher) {
		if timeout > 0 {
			pub.confirmTimeout = timeout
		}
	}
}

// NewConfirmablePublisherFromChannel puts ch in confirm mode and wraps it.
func NewConfirmablePublisherFromChannel(ch ConfirmableChannel, opts ...ConfirmablePublisherOption) (*ConfirmablePublisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	ch.NotifyPublish(confirms)

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))

	pub := &ConfirmablePublisher{
		ch:             ch,
		confirms:       confirms,
		closedCh:       make(chan struct{}),
		logger:         log.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(pub)
		}
	}

	go pub.monitorClose(closeNotify)

	return pub, nil
}

func (pub *ConfirmablePublisher) monitorClose(closeNotify chan *amqp.Error) {
	select {
	case amqpErr, ok := <-closeNotify:
		if ok && amqpErr != nil {
			pub.logger.Log(context.Background(), log.LevelWarn, "rabbitmq: publisher channel closed",
				log.String("reason", amqpErr.Reason), log.Int("code", amqpErr.Code))
		}

		pub.markClosed()
	case <-pub.closedCh:
	}
}

func (pub *ConfirmablePublisher) markClosed() {
	pub.mu.Lock()
	pub.closed = true
	pub.mu.Unlock()

	pub.closeOnce.Do(func() { close(pub.closedCh) })
}

// Publish sends msg and waits for its confirmation. Calls are serialized so
// confirmations arrive in publish order.
func (pub *ConfirmablePublisher) Publish(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg amqp.Publishing) error {
	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.RLock()
	closed := pub.closed
	pub.mu.RUnlock()

	if closed {
		return ErrPublisherClosed
	}

	if err := pub.ch.PublishWithContext(ctx, exchange, routingKey, mandatory, immediate, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	timer := time.NewTimer(pub.confirmTimeout)
	defer timer.Stop()

	select {
	case confirmed, ok := <-pub.confirms:
		if !ok {
			pub.markClosed()
			return ErrPublisherClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil
	case <-pub.closedCh:
		return ErrPublisherClosed
	case <-timer.C:
		// A late confirmation would desynchronize the next wait.
		pub.invalidate()
		return ErrConfirmTimeout
	case <-ctx.Done():
		pub.invalidate()
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

func (pub *ConfirmablePublisher) invalidate() {
	pub.markClosed()
	_ = pub.ch.Close()
}

// Close closes the channel. Further calls are no-ops.
func (pub *ConfirmablePublisher) Close() error {
	pub.publishMu.Lock()
	defer pub.publishMu.Unlock()

	pub.mu.RLock()
	closed := pub.closed
	pub.mu.RUnlock()

	pub.markClosed()

	if closed {
		return nil
	}

	if err := pub.ch.Close(); err != nil {
		return fmt.Errorf("closing publisher channel: %w", err)
	}

	return nil
}

// Closed reports whether the publisher can no longer publish.
func (pub *ConfirmablePublisher) Closed() bool {
	pub.mu.RLock()
	defer pub.mu.RUnlock()

	return pub.closed
}
