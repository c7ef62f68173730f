// Package broker owns the AMQP side of the pipeline: queue topology, the
// consume loop, and the retry and dead-letter decisions.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel is the subset of *amqp.Channel the broker uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Close() error
}

// Connection opens channels. Use Dial for a real broker.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Dial connects to the broker at url.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return amqpConnection{conn}, nil
}

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("broker session closed")

// Session is the single owner of one AMQP channel. Every protocol operation
// goes through it and is serialized by its mutex, so no two goroutines ever
// write frames on the channel at the same time.
type Session struct {
	mu     sync.Mutex
	conn   Connection
	ch     Channel
	closed bool
	logger *zap.Logger
}

// NewSession opens a channel in publisher-confirm mode.
func NewSession(conn Connection, logger *zap.Logger) (*Session, error) {
	s := &Session{conn: conn, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	s.ch = ch
	return nil
}

// Reopen replaces the channel, e.g. after the broker closed it with a
// channel-level exception.
func (s *Session) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	return s.open()
}

// Do runs fn with exclusive use of the channel.
func (s *Session) Do(fn func(ch Channel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn(s.ch)
}

// Consume sets prefetch and starts a consumer with manual acks.
func (s *Session) Consume(queue, tag string, prefetch int) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := s.Do(func(ch Channel) error {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		var err error
		deliveries, err = ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		return nil
	})
	return deliveries, err
}

func (s *Session) Cancel(tag string) error {
	return s.Do(func(ch Channel) error { return ch.Cancel(tag, false) })
}

func (s *Session) Ack(tag uint64) error {
	return s.Do(func(ch Channel) error { return ch.Ack(tag, false) })
}

func (s *Session) Nack(tag uint64, requeue bool) error {
	return s.Do(func(ch Channel) error { return ch.Nack(tag, false, requeue) })
}

// Publish sends msg and waits for the broker's confirm. The lock is released
// while waiting so acks on the same channel are not held up.
func (s *Session) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	var dc *amqp.DeferredConfirmation
	err := s.Do(func(ch Channel) error {
		var err error
		dc, err = ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("publish to %q/%q: %w", exchange, key, err)
	}
	// A nil confirmation means the channel is not in confirm mode.
	if dc == nil {
		return nil
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !ok {
		return fmt.Errorf("publish to %q/%q: broker nacked the message", exchange, key)
	}
	return nil
}

// Close closes the channel. The connection is owned by the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ch == nil {
		return nil
	}
	return s.ch.Close()
}

func isPreconditionFailed(err error) bool {
	var aerr *amqp.Error
	return errors.As(err, &aerr) && aerr.Code == amqp.PreconditionFailed
}
