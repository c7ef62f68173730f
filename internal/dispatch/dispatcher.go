package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/ratelimiter"
	"github.com/notifyhub/salon-notifier/internal/transport"
)

// Hooks carries the metric callbacks injected by main so the dispatcher
// stays metrics-agnostic. Nil fields are no-ops.
type Hooks struct {
	OnAttempt func(channel domain.Channel, status domain.DeliveryStatus, latency time.Duration)
}

// Config wires a Dispatcher.
type Config struct {
	Email          transport.EmailTransport
	SMS            transport.SMSTransport
	Push           transport.PushTransport
	Limiter        *ratelimiter.ChannelLimiters
	ChannelTimeout time.Duration
	Logger         *zap.Logger
	Hooks          Hooks
}

// Options describes the delivery the attempts belong to.
type Options struct {
	EventID  string
	TenantID string
	Kind     domain.EventKind
	Attempt  int

	// AlreadyDelivered maps channels sent on an earlier delivery of the same
	// event to their provider delivery id. Those channels are not re-sent.
	AlreadyDelivered map[domain.Channel]string

	FromName string
	ReplyTo  string
	PushData map[string]string
}

// Dispatcher fans rendered content out to every channel concurrently and
// waits for all of them before returning.
type Dispatcher struct {
	email   transport.EmailTransport
	sms     transport.SMSTransport
	push    transport.PushTransport
	limiter *ratelimiter.ChannelLimiters
	timeout time.Duration
	logger  *zap.Logger
	hooks   Hooks
	now     func() time.Time
}

func New(cfg Config) *Dispatcher {
	if cfg.Hooks.OnAttempt == nil {
		cfg.Hooks.OnAttempt = func(domain.Channel, domain.DeliveryStatus, time.Duration) {}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimiter.New(0)
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		email:   cfg.Email,
		sms:     cfg.SMS,
		push:    cfg.Push,
		limiter: cfg.Limiter,
		timeout: cfg.ChannelTimeout,
		logger:  cfg.Logger,
		hooks:   cfg.Hooks,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch returns exactly one terminal attempt per channel, in
// domain.AllChannels order. A failing or hung channel never affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context, to domain.Recipient, content domain.RenderedContent, opts Options) []domain.DeliveryAttempt {
	channels := domain.AllChannels()
	attempts := make([]domain.DeliveryAttempt, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch domain.Channel) {
			defer wg.Done()
			attempts[i] = d.attempt(ctx, ch, to, content, opts)
		}(i, ch)
	}
	wg.Wait()

	return attempts
}

func (d *Dispatcher) attempt(ctx context.Context, ch domain.Channel, to domain.Recipient, content domain.RenderedContent, opts Options) domain.DeliveryAttempt {
	a := domain.DeliveryAttempt{
		ID:        uuid.NewString(),
		EventID:   opts.EventID,
		TenantID:  opts.TenantID,
		Kind:      opts.Kind,
		Channel:   ch,
		Recipient: to.Address(ch),
		Attempt:   opts.Attempt,
	}
	log := d.logger.With(
		zap.String("event_id", opts.EventID),
		zap.String("channel", string(ch)),
	)

	if a.Recipient == "" {
		a.Status = domain.StatusSkippedNoAddress
		a.CreatedAt = d.now()
		d.hooks.OnAttempt(ch, a.Status, 0)
		log.Info("channel skipped, no address")
		return a
	}

	if id, ok := opts.AlreadyDelivered[ch]; ok {
		a.Status = domain.StatusSent
		a.ProviderDeliveryID = id
		a.Duplicate = true
		a.CreatedAt = d.now()
		d.hooks.OnAttempt(ch, a.Status, 0)
		log.Info("channel already delivered for this event, not resending", zap.String("delivery_id", id))
		return a
	}

	start := time.Now()
	id, err := d.send(ctx, ch, a.Recipient, content, opts)
	elapsed := time.Since(start)
	a.CreatedAt = d.now()

	if err != nil {
		a.Status = domain.StatusFailed
		a.Error = err.Error()
		a.Temporary = transport.IsTemporary(err)
		d.hooks.OnAttempt(ch, a.Status, elapsed)
		log.Warn("channel send failed",
			zap.Error(err),
			zap.Bool("temporary", a.Temporary),
			zap.Duration("latency", elapsed),
		)
		return a
	}

	a.Status = domain.StatusSent
	a.ProviderDeliveryID = id
	d.hooks.OnAttempt(ch, a.Status, elapsed)
	log.Info("channel sent", zap.String("delivery_id", id), zap.Duration("latency", elapsed))
	return a
}

type sendResult struct {
	id  string
	err error
}

// send bounds one channel by the channel timeout, covering both the rate
// limiter wait and a transport that ignores its context.
func (d *Dispatcher) send(ctx context.Context, ch domain.Channel, addr string, content domain.RenderedContent, opts Options) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(cctx, ch); err != nil {
		return "", fmt.Errorf("rate limiter: %w", context.DeadlineExceeded)
	}

	done := make(chan sendResult, 1)
	go func() {
		id, err := d.call(cctx, ch, addr, content, opts)
		done <- sendResult{id: id, err: err}
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-cctx.Done():
		return "", fmt.Errorf("%s send: %w", ch, context.DeadlineExceeded)
	}
}

func (d *Dispatcher) call(ctx context.Context, ch domain.Channel, addr string, content domain.RenderedContent, opts Options) (string, error) {
	switch ch {
	case domain.ChannelEmail:
		return d.email.SendEmail(ctx, transport.EmailMessage{
			To:       addr,
			Subject:  content.Subject,
			HTML:     content.HTML,
			Text:     content.Text,
			FromName: opts.FromName,
			ReplyTo:  opts.ReplyTo,
		})
	case domain.ChannelSMS:
		return d.sms.SendSMS(ctx, addr, content.SMS)
	case domain.ChannelPush:
		return d.push.SendPush(ctx, transport.PushMessage{
			UserID: addr,
			Title:  content.PushTitle,
			Body:   content.PushBody,
			Data:   opts.PushData,
		})
	}
	return "", domain.ErrInvalidChannel
}
