package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// Message headers the consumer reads and writes.
const (
	HeaderRetryCount         = "x-retry-count"
	HeaderTenantID           = "x-tenant-id"
	HeaderOriginalRoutingKey = "x-original-routing-key"
	headerDeath              = "x-death"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery
// channel while the consumer was not shutting down.
var ErrDeliveriesClosed = errors.New("broker closed the delivery channel")

// Handler processes one decoded event. Errors are classified with
// domain.IsRetryable.
type Handler func(ctx context.Context, evt domain.NotificationEvent, meta domain.DeliveryMeta) error

// Outcome is the terminal decision taken for a delivery.
type Outcome string

const (
	OutcomeAck        Outcome = "ack"
	OutcomeRetry      Outcome = "retry"
	OutcomeDeadLetter Outcome = "dead_letter"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Hooks are optional callbacks, injected by main so the consumer stays
// metrics-agnostic.
type Hooks struct {
	OnOutcome func(kind string, outcome Outcome, elapsed time.Duration)
}

// ConsumerConfig tunes one consumer instance.
type ConsumerConfig struct {
	Queue       string
	RetryQueue  string
	Tag         string
	MaxAttempts int
	// Backoff[i] is the delay before retry i+1; the last entry is reused.
	Backoff        []time.Duration
	Prefetch       int
	HandlerTimeout time.Duration
	// ShutdownGrace bounds how long an in-flight handler may keep running
	// after shutdown starts.
	ShutdownGrace  time.Duration
	PublishTimeout time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if len(c.Backoff) == 0 {
		c.Backoff = []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = time.Minute
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// Readiness reports whether the topology is declared and at least one
// consumer is attached. Safe for concurrent use.
type Readiness struct {
	topology  atomic.Bool
	consuming atomic.Int32
}

func (r *Readiness) SetTopologyReady(ok bool) { r.topology.Store(ok) }

func (r *Readiness) Ready() bool {
	return r.topology.Load() && r.consuming.Load() > 0
}

// Consumer pulls deliveries from the work queue and turns every handler
// result into exactly one of: ack, retry (republish + ack), dead-letter
// (nack without requeue), or leave unacknowledged on shutdown.
type Consumer struct {
	session *Session
	cfg     ConsumerConfig
	ready   *Readiness
	hooks   Hooks
	logger  *zap.Logger
}

// NewConsumer builds a consumer. ready may be nil.
func NewConsumer(session *Session, cfg ConsumerConfig, ready *Readiness, hooks Hooks, logger *zap.Logger) *Consumer {
	cfg.applyDefaults()
	if hooks.OnOutcome == nil {
		hooks.OnOutcome = func(string, Outcome, time.Duration) {}
	}
	if ready == nil {
		ready = &Readiness{}
	}
	return &Consumer{session: session, cfg: cfg, ready: ready, hooks: hooks, logger: logger}
}

// Run blocks, handling one delivery at a time, until ctx is cancelled or the
// broker closes the delivery channel. Cancellation returns nil once the
// in-flight message, if any, is settled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.session.Consume(c.cfg.Queue, c.cfg.Tag, c.cfg.Prefetch)
	if err != nil {
		return err
	}
	c.ready.consuming.Add(1)
	defer c.ready.consuming.Add(-1)

	c.logger.Info("consumer started",
		zap.String("queue", c.cfg.Queue),
		zap.String("tag", c.cfg.Tag),
		zap.Int("prefetch", c.cfg.Prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.stop()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("delivery channel closed unexpectedly", zap.String("tag", c.cfg.Tag))
				return ErrDeliveriesClosed
			}
			// Shutdown won the race: leave it for redelivery.
			if ctx.Err() != nil {
				c.stop()
				return nil
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) stop() {
	if err := c.session.Cancel(c.cfg.Tag); err != nil && !errors.Is(err, ErrSessionClosed) {
		c.logger.Warn("failed to cancel consumer", zap.String("tag", c.cfg.Tag), zap.Error(err))
	}
	c.logger.Info("consumer stopped", zap.String("tag", c.cfg.Tag))
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	start := time.Now()
	meta := deliveryMeta(d)
	log := c.logger.With(
		zap.String("message_id", meta.MessageID),
		zap.String("routing_key", meta.RoutingKey),
		zap.Int("attempt", meta.Attempt),
	)

	evt, err := domain.ParseEvent(d.Body, domain.EventSource{
		MessageID:  meta.MessageID,
		RoutingKey: meta.RoutingKey,
		TenantID:   headerString(d.Headers, HeaderTenantID),
	})
	if err != nil {
		c.deadLetter(d, domain.Permanent(domain.StageDecode, err), log)
		c.hooks.OnOutcome("unknown", OutcomeDeadLetter, time.Since(start))
		return
	}
	log = log.With(
		zap.String("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.String("tenant_id", evt.TenantID),
	)

	abandoned, err := c.invoke(ctx, handler, evt, meta)
	outcome := c.settle(ctx, d, meta, err, abandoned, log)
	c.hooks.OnOutcome(evt.Kind.Short(), outcome, time.Since(start))
}

// invoke runs the handler on a context detached from ctx, so shutdown does
// not cut a pipeline short. Once ctx is done the handler gets ShutdownGrace
// to finish; after that its context is cancelled and a failing run is
// reported as abandoned.
func (c *Consumer) invoke(ctx context.Context, handler Handler, evt domain.NotificationEvent, meta domain.DeliveryMeta) (bool, error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.HandlerTimeout)
	defer cancel()

	var abandoned atomic.Bool
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		grace := time.NewTimer(c.cfg.ShutdownGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			abandoned.Store(true)
			cancel()
		}
	}()

	err := handler(hctx, evt, meta)
	close(done)
	return err != nil && abandoned.Load(), err
}

func (c *Consumer) settle(ctx context.Context, d amqp.Delivery, meta domain.DeliveryMeta, err error, abandoned bool, log *zap.Logger) Outcome {
	switch {
	case err == nil:
		if aerr := c.session.Ack(d.DeliveryTag); aerr != nil {
			log.Error("ack failed", zap.Error(aerr))
		}
		return OutcomeAck

	case abandoned:
		log.Warn("handler cut short by shutdown; leaving message for redelivery", zap.Error(err))
		return OutcomeAbandoned

	case !domain.IsRetryable(err):
		c.deadLetter(d, err, log)
		return OutcomeDeadLetter

	case meta.Attempt+1 > c.cfg.MaxAttempts:
		log.Error("retry budget exhausted; dead-lettering",
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.String("stage", string(domain.StageOf(err))),
			zap.Error(err),
		)
		c.nack(d, false, log)
		return OutcomeDeadLetter

	default:
		c.retry(ctx, d, meta, err, log)
		return OutcomeRetry
	}
}

// retry republishes a copy with the next attempt number onto the retry
// queue, then acks the original. A failed republish requeues the original;
// a duplicate is preferable to a lost message.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, meta domain.DeliveryMeta, cause error, log *zap.Logger) {
	next := meta.Attempt + 1
	delay := c.backoff(meta.Attempt)

	headers := amqp.Table{}
	for k, v := range d.Headers {
		if k == headerDeath {
			continue
		}
		headers[k] = v
	}
	headers[HeaderRetryCount] = int32(next)
	headers[HeaderOriginalRoutingKey] = meta.RoutingKey

	msg := amqp.Publishing{
		Headers:         headers,
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		DeliveryMode:    amqp.Persistent,
		CorrelationId:   d.CorrelationId,
		MessageId:       d.MessageId,
		Timestamp:       d.Timestamp,
		Type:            d.Type,
		AppId:           d.AppId,
		Expiration:      strconv.FormatInt(delay.Milliseconds(), 10),
		Body:            d.Body,
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PublishTimeout)
	defer cancel()
	if err := c.session.Publish(pctx, "", c.cfg.RetryQueue, msg); err != nil {
		log.Error("republish for retry failed; requeueing original", zap.Error(err), zap.NamedError("cause", cause))
		c.nack(d, true, log)
		return
	}
	if err := c.session.Ack(d.DeliveryTag); err != nil {
		log.Error("ack after republish failed", zap.Error(err))
		return
	}
	log.Warn("retry scheduled",
		zap.Int("next_attempt", next),
		zap.Duration("backoff", delay),
		zap.String("stage", string(domain.StageOf(cause))),
		zap.Error(cause),
	)
}

func (c *Consumer) deadLetter(d amqp.Delivery, cause error, log *zap.Logger) {
	log.Error("permanent failure; dead-lettering",
		zap.String("stage", string(domain.StageOf(cause))),
		zap.Error(cause),
		zap.ByteString("body", d.Body),
	)
	c.nack(d, false, log)
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool, log *zap.Logger) {
	if err := c.session.Nack(d.DeliveryTag, requeue); err != nil {
		log.Error("nack failed", zap.Bool("requeue", requeue), zap.Error(err))
	}
}

func (c *Consumer) backoff(attempt int) time.Duration {
	idx := attempt
	if idx >= len(c.cfg.Backoff) {
		idx = len(c.cfg.Backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return c.cfg.Backoff[idx]
}

func deliveryMeta(d amqp.Delivery) domain.DeliveryMeta {
	key := headerString(d.Headers, HeaderOriginalRoutingKey)
	if key == "" {
		key = d.RoutingKey
	}
	return domain.DeliveryMeta{
		MessageID:   d.MessageId,
		RoutingKey:  key,
		Attempt:     retryCount(d.Headers),
		Redelivered: d.Redelivered,
		Headers:     d.Headers,
	}
}

// retryCount reads x-retry-count. Producers using other AMQP clients may
// send it as any integer width or as a string; anything unreadable is 0.
func retryCount(h amqp.Table) int {
	switch v := h[HeaderRetryCount].(type) {
	case int:
		return clampAttempt(int64(v))
	case int8:
		return clampAttempt(int64(v))
	case int16:
		return clampAttempt(int64(v))
	case int32:
		return clampAttempt(int64(v))
	case int64:
		return clampAttempt(v)
	case uint8:
		return clampAttempt(int64(v))
	case uint16:
		return clampAttempt(int64(v))
	case uint32:
		return clampAttempt(int64(v))
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return clampAttempt(int64(n))
	default:
		return 0
	}
}

func clampAttempt(n int64) int {
	if n < 0 {
		return 0
	}
	if n > 1<<20 {
		return 1 << 20
	}
	return int(n)
}

func headerString(h amqp.Table, key string) string {
	switch v := h[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
