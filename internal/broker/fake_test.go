package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type nackCall struct {
	tag     uint64
	requeue bool
}

// fakeBroker is shared by every channel a fakeConn opens, so state survives
// a Reopen the way it would on a real broker.
type fakeBroker struct {
	mu sync.Mutex

	deliveries chan amqp.Delivery
	nextTag    uint64

	queues    map[string]amqp.Table
	exchanges map[string]string
	bindings  []string
	deleted   []string
	depth     map[string]int

	acks      []uint64
	nacks     []nackCall
	published []publishCall
	cancelled []string
	qos       int

	// conflicting makes QueueDeclare answer 406 for a queue whose stored
	// arguments differ from the requested ones.
	conflicting bool
	// exchangeConflict makes ExchangeDeclare of this name answer 406.
	exchangeConflict string
	publishErr       error
	// loopback feeds retry-queue publishes straight back as deliveries,
	// standing in for the TTL expiring.
	loopback  bool
	workQueue string

	opened int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		deliveries: make(chan amqp.Delivery, 64),
		queues:     map[string]amqp.Table{},
		exchanges:  map[string]string{},
		depth:      map[string]int{},
		workQueue:  "notifications.work",
	}
}

func (b *fakeBroker) deliver(d amqp.Delivery) {
	b.mu.Lock()
	b.nextTag++
	d.DeliveryTag = b.nextTag
	b.mu.Unlock()
	b.deliveries <- d
}

func (b *fakeBroker) settled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.acks) + len(b.nacks)
}

func (b *fakeBroker) snapshot() (acks []uint64, nacks []nackCall, published []publishCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.acks...), append([]nackCall(nil), b.nacks...), append([]publishCall(nil), b.published...)
}

type fakeConn struct {
	b       *fakeBroker
	openErr error
}

func (c *fakeConn) Channel() (Channel, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.b.mu.Lock()
	c.b.opened++
	c.b.mu.Unlock()
	return &fakeChannel{b: c.b}, nil
}

func (c *fakeConn) Close() error { return nil }

type fakeChannel struct {
	b      *fakeBroker
	closed bool
}

var errChannelClosed = errors.New("fake: channel closed")

func precondition(reason string) error {
	return &amqp.Error{Code: amqp.PreconditionFailed, Reason: reason}
}

func (c *fakeChannel) Qos(prefetch, _ int, _ bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.qos = prefetch
	return nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	if name == c.b.exchangeConflict {
		c.closed = true
		return precondition("inequivalent arg 'durable' for exchange")
	}
	c.b.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) ExchangeDeclarePassive(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	if name == c.b.exchangeConflict {
		return nil
	}
	if _, ok := c.b.exchanges[name]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: "no exchange " + name}
	}
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return amqp.Queue{}, errChannelClosed
	}
	if existing, ok := c.b.queues[name]; ok && c.b.conflicting && !sameArgs(existing, args) {
		c.closed = true
		return amqp.Queue{}, precondition("inequivalent arg 'x-dead-letter-exchange' for queue " + name)
	}
	c.b.queues[name] = args
	return amqp.Queue{Name: name, Messages: c.b.depth[name]}, nil
}

func sameArgs(a, b amqp.Table) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (c *fakeChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if _, ok := c.b.queues[name]; !ok {
		c.closed = true
		return amqp.Queue{}, &amqp.Error{Code: amqp.NotFound, Reason: "no queue " + name}
	}
	return amqp.Queue{Name: name, Messages: c.b.depth[name]}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	c.b.bindings = append(c.b.bindings, exchange+"->"+name+":"+key)
	return nil
}

func (c *fakeChannel) QueueDelete(name string, _, _, _ bool) (int, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return 0, errChannelClosed
	}
	delete(c.b.queues, name)
	c.b.deleted = append(c.b.deleted, name)
	n := c.b.depth[name]
	c.b.depth[name] = 0
	return n, nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.b.deliveries, nil
}

func (c *fakeChannel) Cancel(tag string, _ bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.cancelled = append(c.b.cancelled, tag)
	return nil
}

func (c *fakeChannel) Confirm(bool) error { return nil }

func (c *fakeChannel) PublishWithDeferredConfirmWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.b.mu.Lock()
	if c.b.publishErr != nil {
		err := c.b.publishErr
		c.b.mu.Unlock()
		return nil, err
	}
	c.b.published = append(c.b.published, publishCall{exchange: exchange, key: key, msg: msg})
	loop := c.b.loopback
	c.b.mu.Unlock()

	if loop {
		c.b.deliver(amqp.Delivery{
			Headers:    msg.Headers,
			MessageId:  msg.MessageId,
			RoutingKey: c.b.workQueue,
			Body:       msg.Body,
		})
	}
	// Not in confirm mode: the real client returns a nil confirmation too.
	return nil, nil
}

func (c *fakeChannel) Ack(tag uint64, _ bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.acks = append(c.b.acks, tag)
	return nil
}

func (c *fakeChannel) Nack(tag uint64, _, requeue bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.nacks = append(c.b.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (c *fakeChannel) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closed = true
	return nil
}
