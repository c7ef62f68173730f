package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/dispatch"
	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/repository"
)

// Enricher hydrates an event. Errors must already carry their stage.
type Enricher interface {
	Enrich(ctx context.Context, evt domain.NotificationEvent) (domain.MessageContext, error)
}

// Renderer produces channel content for a template kind.
type Renderer interface {
	Render(kind domain.EventKind, mc domain.MessageContext) (domain.RenderedContent, error)
}

// Dispatcher sends content on every channel and reports one attempt each.
type Dispatcher interface {
	Dispatch(ctx context.Context, to domain.Recipient, content domain.RenderedContent, opts dispatch.Options) []domain.DeliveryAttempt
}

// route is the pipeline for one event kind. Every kind shares the shape
// enrich, render, dispatch, record; only the template differs.
type route struct {
	template domain.EventKind
}

// Config wires a Router.
type Config struct {
	Enricher   Enricher
	Renderer   Renderer
	Dispatcher Dispatcher
	Attempts   repository.AttemptRepository
	// RetryOnChannelFailure escalates a temporary channel failure to a
	// retry of the whole event. Channels already sent are not re-sent.
	RetryOnChannelFailure bool
	Logger                *zap.Logger
}

// Router maps an event kind to its pipeline.
type Router struct {
	routes      map[domain.EventKind]route
	enricher    Enricher
	renderer    Renderer
	dispatcher  Dispatcher
	attempts    repository.AttemptRepository
	retryOnFail bool
	logger      *zap.Logger
}

// New builds the dispatch table and fails if any kind has no route.
func New(cfg Config) (*Router, error) {
	routes := map[domain.EventKind]route{
		domain.KindCreated:   {template: domain.KindCreated},
		domain.KindUpdated:   {template: domain.KindUpdated},
		domain.KindCancelled: {template: domain.KindCancelled},
		domain.KindConfirmed: {template: domain.KindConfirmed},
		domain.KindCompleted: {template: domain.KindCompleted},
		domain.KindNoShow:    {template: domain.KindNoShow},
	}
	if err := checkExhaustive(routes); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Router{
		routes:      routes,
		enricher:    cfg.Enricher,
		renderer:    cfg.Renderer,
		dispatcher:  cfg.Dispatcher,
		attempts:    cfg.Attempts,
		retryOnFail: cfg.RetryOnChannelFailure,
		logger:      cfg.Logger,
	}, nil
}

func checkExhaustive(routes map[domain.EventKind]route) error {
	var missing []string
	for _, k := range domain.AllEventKinds() {
		if _, ok := routes[k]; !ok {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("router: no route for %s", strings.Join(missing, ", "))
	}
	return nil
}

// Route runs the pipeline for evt. Every returned error is a *domain.StageError.
func (r *Router) Route(ctx context.Context, evt domain.NotificationEvent, meta domain.DeliveryMeta) error {
	rt, ok := r.routes[evt.Kind]
	if !ok {
		return domain.Permanent(domain.StageDecode, fmt.Errorf("%w: %q", domain.ErrUnknownKind, evt.Kind))
	}

	log := r.logger.With(
		zap.String("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.String("tenant_id", evt.TenantID),
		zap.Int("attempt", meta.Attempt),
	)

	mc, err := r.enricher.Enrich(ctx, evt)
	if err != nil {
		return err
	}

	content, err := r.renderer.Render(rt.template, mc)
	if err != nil {
		return domain.Permanent(domain.StageRender, err)
	}

	delivered, err := r.attempts.DeliveredChannels(ctx, evt.ID)
	if err != nil {
		return domain.Retryable(domain.StageDispatch, fmt.Errorf("load prior deliveries: %w", err))
	}

	attempts := r.dispatcher.Dispatch(ctx, mc.Recipient(), content, dispatch.Options{
		EventID:          evt.ID,
		TenantID:         evt.TenantID,
		Kind:             evt.Kind,
		Attempt:          meta.Attempt,
		AlreadyDelivered: delivered,
		FromName:         mc.Branding.Name,
		ReplyTo:          mc.Branding.Email,
		PushData: map[string]string{
			"eventId":       evt.ID,
			"kind":          string(evt.Kind),
			"appointmentId": evt.AppointmentID,
		},
	})

	if err := r.attempts.Record(ctx, attempts); err != nil {
		return domain.Retryable(domain.StageDispatch, fmt.Errorf("record attempts: %w", err))
	}

	var failed []string
	retry := false
	for _, a := range attempts {
		if a.Status != domain.StatusFailed {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", a.Channel, a.Error))
		if a.Temporary {
			retry = true
		}
	}

	if len(failed) == 0 {
		log.Info("event delivered")
		return nil
	}
	if retry && r.retryOnFail {
		return domain.Retryable(domain.StageDispatch, fmt.Errorf("channel failures: %s", strings.Join(failed, "; ")))
	}
	log.Warn("event delivered with failed channels", zap.Strings("failures", failed))
	return nil
}
