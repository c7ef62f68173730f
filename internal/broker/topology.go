package broker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TopologyConfig names every exchange and queue the worker relies on.
type TopologyConfig struct {
	UpstreamExchange   string // topic exchange appointment producers publish to
	BindingKey         string // e.g. "appointment.*"
	WorkQueue          string
	RetryQueue         string
	DeadLetterExchange string
	DeadLetterQueue    string
}

// DefaultTopology returns the standard names.
func DefaultTopology() TopologyConfig {
	return TopologyConfig{
		UpstreamExchange:   "appointments",
		BindingKey:         "appointment.*",
		WorkQueue:          "notifications.work",
		RetryQueue:         "notifications.retry",
		DeadLetterExchange: "notifications.dlx",
		DeadLetterQueue:    "notifications.dead",
	}
}

// DeadLetterRoutingKey is the fixed key rejected messages are routed with.
func (c TopologyConfig) DeadLetterRoutingKey() string {
	return c.DeadLetterQueue
}

// Topology declares the queues and exchanges. Ensure is idempotent and runs
// on every start.
type Topology struct {
	session *Session
	cfg     TopologyConfig
	logger  *zap.Logger
}

func NewTopology(session *Session, cfg TopologyConfig, logger *zap.Logger) *Topology {
	return &Topology{session: session, cfg: cfg, logger: logger}
}

func (t *Topology) workQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.cfg.DeadLetterExchange,
		"x-dead-letter-routing-key": t.cfg.DeadLetterRoutingKey(),
	}
}

// retryQueueArgs send expired retry copies back to the work queue through
// the default exchange. Each copy carries its own TTL as the backoff.
func (t *Topology) retryQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.cfg.WorkQueue,
	}
}

// Ensure declares, in order: the upstream exchange, the dead-letter exchange
// and queue, the retry queue, and the work queue with its binding.
//
// If the work queue exists with different arguments the broker answers
// PRECONDITION_FAILED; the queue is then deleted and recreated. It only ever
// holds replayable work, so availability wins over the messages it held.
func (t *Topology) Ensure(ctx context.Context) error {
	c := t.cfg

	if err := t.ensureExchange(c.UpstreamExchange, amqp.ExchangeTopic); err != nil {
		return err
	}
	if err := t.ensureExchange(c.DeadLetterExchange, amqp.ExchangeDirect); err != nil {
		return err
	}

	err := t.session.Do(func(ch Channel) error {
		if _, err := ch.QueueDeclare(c.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue %s: %w", c.DeadLetterQueue, err)
		}
		if err := ch.QueueBind(c.DeadLetterQueue, c.DeadLetterRoutingKey(), c.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
		if _, err := ch.QueueDeclare(c.RetryQueue, true, false, false, false, t.retryQueueArgs()); err != nil {
			return fmt.Errorf("declare retry queue %s: %w", c.RetryQueue, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := t.declareWorkQueue(); err != nil {
		if !isPreconditionFailed(err) {
			return err
		}
		if err := t.recreateWorkQueue(ctx, err); err != nil {
			return err
		}
	}

	return t.session.Do(func(ch Channel) error {
		if err := ch.QueueBind(c.WorkQueue, c.BindingKey, c.UpstreamExchange, false, nil); err != nil {
			return fmt.Errorf("bind work queue: %w", err)
		}
		return nil
	})
}

func (t *Topology) declareWorkQueue() error {
	return t.session.Do(func(ch Channel) error {
		if _, err := ch.QueueDeclare(t.cfg.WorkQueue, true, false, false, false, t.workQueueArgs()); err != nil {
			return fmt.Errorf("declare work queue %s: %w", t.cfg.WorkQueue, err)
		}
		return nil
	})
}

func (t *Topology) recreateWorkQueue(ctx context.Context, cause error) error {
	t.logger.Warn("work queue exists with conflicting arguments; deleting and recreating it, messages in it are dropped",
		zap.String("queue", t.cfg.WorkQueue),
		zap.Error(cause),
	)

	// The broker closes the channel on a precondition failure.
	if err := t.session.Reopen(); err != nil {
		return fmt.Errorf("reopen channel after precondition failure: %w", err)
	}
	err := t.session.Do(func(ch Channel) error {
		purged, err := ch.QueueDelete(t.cfg.WorkQueue, false, false, false)
		if err != nil {
			return fmt.Errorf("delete work queue %s: %w", t.cfg.WorkQueue, err)
		}
		t.logger.Warn("work queue deleted", zap.String("queue", t.cfg.WorkQueue), zap.Int("dropped_messages", purged))
		return nil
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return t.declareWorkQueue()
}

// ensureExchange declares name, tolerating an existing exchange whose
// flags or arguments differ from ours.
func (t *Topology) ensureExchange(name, kind string) error {
	err := t.session.Do(func(ch Channel) error {
		return ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
	})
	if err == nil {
		return nil
	}
	if !isPreconditionFailed(err) {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}

	t.logger.Warn("exchange already exists with different settings; using it as is",
		zap.String("exchange", name), zap.Error(err))
	if err := t.session.Reopen(); err != nil {
		return fmt.Errorf("reopen channel: %w", err)
	}
	return t.session.Do(func(ch Channel) error {
		if err := ch.ExchangeDeclarePassive(name, kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("exchange %s: %w", name, err)
		}
		return nil
	})
}

// QueueDepths returns the ready message count of the work, retry and
// dead-letter queues. A failed passive declare closes the admin channel; it
// is reopened before the error is returned.
func (t *Topology) QueueDepths() (map[string]int, error) {
	depths := make(map[string]int, 3)
	err := t.session.Do(func(ch Channel) error {
		for _, q := range []string{t.cfg.WorkQueue, t.cfg.RetryQueue, t.cfg.DeadLetterQueue} {
			info, err := ch.QueueDeclarePassive(q, true, false, false, false, nil)
			if err != nil {
				return fmt.Errorf("inspect queue %s: %w", q, err)
			}
			depths[q] = info.Messages
		}
		return nil
	})
	if err == nil {
		return depths, nil
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		t.logger.Warn("queue inspection closed the admin channel, reopening",
			zap.Int("code", amqpErr.Code),
			zap.String("reason", amqpErr.Reason),
		)
		if rerr := t.session.Reopen(); rerr != nil {
			t.logger.Error("reopen admin channel failed", zap.Error(rerr))
		}
	}
	return nil, err
}
