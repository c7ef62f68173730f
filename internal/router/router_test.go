package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/directory"
	"github.com/notifyhub/salon-notifier/internal/dispatch"
	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/enrichment"
	"github.com/notifyhub/salon-notifier/internal/render"
	"github.com/notifyhub/salon-notifier/internal/repository"
	"github.com/notifyhub/salon-notifier/internal/router"
	"github.com/notifyhub/salon-notifier/internal/transport"
)

type recordingTransport struct {
	mu     sync.Mutex
	emails []transport.EmailMessage
	sms    []string
	pushes []transport.PushMessage
	err    map[domain.Channel]error
}

func (r *recordingTransport) fail(ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err[ch]
}

func (r *recordingTransport) SendEmail(_ context.Context, msg transport.EmailMessage) (string, error) {
	if err := r.fail(domain.ChannelEmail); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, msg)
	return "email-1", nil
}

func (r *recordingTransport) SendSMS(_ context.Context, _, message string) (string, error) {
	if err := r.fail(domain.ChannelSMS); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms = append(r.sms, message)
	return "sms-1", nil
}

func (r *recordingTransport) SendPush(_ context.Context, msg transport.PushMessage) (string, error) {
	if err := r.fail(domain.ChannelPush); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, msg)
	return "push-1", nil
}

func (r *recordingTransport) Close() error { return nil }

type fixture struct {
	router *router.Router
	dir    *directory.MockDirectory
	repo   *repository.MockAttemptRepository
	tr     *recordingTransport
}

func newFixture(t *testing.T, retryOnFailure bool) *fixture {
	t.Helper()
	dir := directory.NewSeededMockDirectory()
	repo := repository.NewMockAttemptRepository()
	tr := &recordingTransport{err: map[domain.Channel]error{}}

	renderer, err := render.New(zap.NewNop())
	require.NoError(t, err)

	r, err := router.New(router.Config{
		Enricher:              enrichment.New(dir, dir, time.Second, zap.NewNop()),
		Renderer:              renderer,
		Dispatcher:            dispatch.New(dispatch.Config{Email: tr, SMS: tr, Push: tr, ChannelTimeout: time.Second, Logger: zap.NewNop()}),
		Attempts:              repo,
		RetryOnChannelFailure: retryOnFailure,
		Logger:                zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{router: r, dir: dir, repo: repo, tr: tr}
}

var created = domain.NotificationEvent{
	ID:            "e1",
	Kind:          domain.KindCreated,
	TenantID:      "t1",
	AppointmentID: "a1",
	UserID:        "u1",
	StylistID:     "s1",
}

func statuses(attempts []domain.DeliveryAttempt) map[domain.Channel]domain.DeliveryStatus {
	m := map[domain.Channel]domain.DeliveryStatus{}
	for _, a := range attempts {
		m[a.Channel] = a.Status
	}
	return m
}

func TestRoute_CreatedScenario(t *testing.T) {
	f := newFixture(t, true)

	err := f.router.Route(context.Background(), created, domain.DeliveryMeta{})
	require.NoError(t, err)

	attempts := f.repo.All()
	require.Len(t, attempts, 3)
	assert.Equal(t, map[domain.Channel]domain.DeliveryStatus{
		domain.ChannelEmail: domain.StatusSent,
		domain.ChannelSMS:   domain.StatusSent,
		domain.ChannelPush:  domain.StatusSkippedNoAddress,
	}, statuses(attempts))

	require.Len(t, f.tr.emails, 1)
	email := f.tr.emails[0]
	assert.Equal(t, "jane@example.com", email.To)
	assert.Equal(t, "Shear Bliss", email.FromName)
	assert.Contains(t, email.Text, "Haircut")
	assert.Contains(t, email.Text, "$50.00")
	assert.Contains(t, email.Text, "Sam")
	require.Len(t, f.tr.sms, 1)
	assert.Contains(t, f.tr.sms[0], "Jane")
	assert.Empty(t, f.tr.pushes)
}

func TestRoute_TenantNotFound(t *testing.T) {
	f := newFixture(t, true)
	evt := created
	evt.TenantID = "ghost"

	err := f.router.Route(context.Background(), evt, domain.DeliveryMeta{})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.Empty(t, f.repo.All())
}

func TestRoute_UnknownKindIsPermanent(t *testing.T) {
	f := newFixture(t, true)
	evt := created
	evt.Kind = "appointment.archived"

	err := f.router.Route(context.Background(), evt, domain.DeliveryMeta{})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
	assert.Zero(t, f.dir.Calls())
}

func TestRoute_EnrichmentFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, true)
	f.dir.AppointmentErr = errors.New("directory 503")

	err := f.router.Route(context.Background(), created, domain.DeliveryMeta{})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, domain.StageEnrich, domain.StageOf(err))
	assert.Empty(t, f.repo.All())
}

func TestRoute_EveryKindRenders(t *testing.T) {
	for _, kind := range domain.AllEventKinds() {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, true)
			evt := created
			evt.Kind = kind
			require.NoError(t, f.router.Route(context.Background(), evt, domain.DeliveryMeta{}))
			assert.Len(t, f.repo.All(), 3)
		})
	}
}

func TestRoute_ChannelFailurePolicy(t *testing.T) {
	temporaryErr := &transport.Error{Transport: "sms-gateway", StatusCode: 503, Temporary: true, Err: errors.New("down")}

	t.Run("temporary failure retries the event", func(t *testing.T) {
		f := newFixture(t, true)
		f.tr.err[domain.ChannelSMS] = temporaryErr

		err := f.router.Route(context.Background(), created, domain.DeliveryMeta{})
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
		assert.Equal(t, domain.StageDispatch, domain.StageOf(err))
		assert.Equal(t, domain.StatusSent, statuses(f.repo.All())[domain.ChannelEmail])

		// Redelivery: SMS recovers, email must not be sent twice.
		delete(f.tr.err, domain.ChannelSMS)
		require.NoError(t, f.router.Route(context.Background(), created, domain.DeliveryMeta{Attempt: 1}))
		assert.Len(t, f.tr.emails, 1)
		assert.Len(t, f.tr.sms, 1)

		var dup int
		for _, a := range f.repo.All() {
			if a.Attempt == 1 && a.Channel == domain.ChannelEmail {
				assert.True(t, a.Duplicate)
				assert.Equal(t, "email-1", a.ProviderDeliveryID)
				dup++
			}
		}
		assert.Equal(t, 1, dup)
	})

	t.Run("permanent failure does not retry", func(t *testing.T) {
		f := newFixture(t, true)
		f.tr.err[domain.ChannelSMS] = &transport.Error{Transport: "sms-gateway", StatusCode: 400, Err: errors.New("invalid number")}

		require.NoError(t, f.router.Route(context.Background(), created, domain.DeliveryMeta{}))
		assert.Equal(t, domain.StatusFailed, statuses(f.repo.All())[domain.ChannelSMS])
	})

	t.Run("policy off acknowledges partial failure", func(t *testing.T) {
		f := newFixture(t, false)
		f.tr.err[domain.ChannelSMS] = temporaryErr

		require.NoError(t, f.router.Route(context.Background(), created, domain.DeliveryMeta{}))
	})
}

func TestRoute_RecordFailureIsRetryable(t *testing.T) {
	f := newFixture(t, true)
	f.repo.RecordErr = errors.New("db down")

	err := f.router.Route(context.Background(), created, domain.DeliveryMeta{})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

type brokenRenderer struct{}

func (brokenRenderer) Render(domain.EventKind, domain.MessageContext) (domain.RenderedContent, error) {
	return domain.RenderedContent{}, errors.New("template: missing field")
}

func TestRoute_RenderFailureIsPermanent(t *testing.T) {
	dir := directory.NewSeededMockDirectory()
	repo := repository.NewMockAttemptRepository()
	tr := &recordingTransport{err: map[domain.Channel]error{}}
	r, err := router.New(router.Config{
		Enricher:   enrichment.New(dir, dir, time.Second, zap.NewNop()),
		Renderer:   brokenRenderer{},
		Dispatcher: dispatch.New(dispatch.Config{Email: tr, SMS: tr, Push: tr}),
		Attempts:   repo,
	})
	require.NoError(t, err)

	err = r.Route(context.Background(), created, domain.DeliveryMeta{})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, domain.StageRender, domain.StageOf(err))
	assert.Empty(t, repo.All())
	assert.Empty(t, tr.emails)
}
