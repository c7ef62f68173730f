package enrichment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/directory"
	"github.com/notifyhub/salon-notifier/internal/domain"
	"github.com/notifyhub/salon-notifier/internal/enrichment"
)

var event = domain.NotificationEvent{
	ID:            "e1",
	Kind:          domain.KindCreated,
	TenantID:      "t1",
	AppointmentID: "a1",
	UserID:        "u1",
	StylistID:     "s1",
}

func TestEnrich_HydratesContext(t *testing.T) {
	dir := directory.NewSeededMockDirectory()
	g := enrichment.New(dir, dir, time.Second, zap.NewNop())

	mc, err := g.Enrich(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, "Shear Bliss", mc.Branding.Name)
	assert.Equal(t, "Jane Doe", mc.Client.FullName())
	assert.Equal(t, "Sam", mc.Stylist.Name)
	assert.Equal(t, "a1", mc.Appointment.ID)
	assert.Equal(t, event, mc.Event)
}

func TestEnrich_IDsDefaultFromAppointment(t *testing.T) {
	dir := directory.NewSeededMockDirectory()
	g := enrichment.New(dir, dir, time.Second, zap.NewNop())

	evt := event
	evt.UserID, evt.StylistID = "", ""
	mc, err := g.Enrich(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "u1", mc.Client.ID)
	assert.Equal(t, "s1", mc.Stylist.ID)
}

func TestEnrich_TenantNotFoundIsPermanent(t *testing.T) {
	dir := directory.NewSeededMockDirectory()
	g := enrichment.New(dir, dir, time.Second, zap.NewNop())

	evt := event
	evt.TenantID = "ghost"
	_, err := g.Enrich(context.Background(), evt)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, domain.StageEnrich, domain.StageOf(err))
}

func TestEnrich_LookupFailuresAreRetryable(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*directory.MockDirectory)
	}{
		{"tenant directory down", func(m *directory.MockDirectory) { m.TenantErr = errors.New("503") }},
		{"appointment missing", func(m *directory.MockDirectory) { m.AppointmentErr = domain.ErrNotFound }},
		{"user lookup failed", func(m *directory.MockDirectory) { m.ClientErr = errors.New("connection reset") }},
		{"stylist lookup failed", func(m *directory.MockDirectory) { m.StylistErr = errors.New("timeout") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := directory.NewSeededMockDirectory()
			tc.mutate(dir)
			g := enrichment.New(dir, dir, time.Second, zap.NewNop())

			_, err := g.Enrich(context.Background(), event)
			require.Error(t, err)
			assert.True(t, domain.IsRetryable(err))
			assert.Equal(t, domain.StageEnrich, domain.StageOf(err))
		})
	}
}

func TestEnrich_TimeoutIsRetryable(t *testing.T) {
	dir := directory.NewSeededMockDirectory()
	dir.Delay = time.Second
	g := enrichment.New(dir, dir, 30*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := g.Enrich(context.Background(), event)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "reads must run in parallel under their own deadline")
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowMissingTenants struct{ delay time.Duration }

func (s slowMissingTenants) GetTenant(ctx context.Context, _ string) (domain.TenantBrandingProfile, error) {
	select {
	case <-time.After(s.delay):
		return domain.TenantBrandingProfile{}, domain.ErrTenantNotFound
	case <-ctx.Done():
		return domain.TenantBrandingProfile{}, ctx.Err()
	}
}

type missingAppointments struct{}

func (missingAppointments) GetAppointment(context.Context, string, string) (domain.Appointment, error) {
	return domain.Appointment{}, domain.ErrNotFound
}

func (missingAppointments) GetClient(context.Context, string, string) (domain.Client, error) {
	return domain.Client{}, domain.ErrNotFound
}

func (missingAppointments) GetStylist(context.Context, string, string) (domain.Stylist, error) {
	return domain.Stylist{}, domain.ErrNotFound
}

func TestEnrich_SlowTenantNotFoundStillPermanent(t *testing.T) {
	g := enrichment.New(slowMissingTenants{delay: 20 * time.Millisecond}, missingAppointments{}, time.Second, zap.NewNop())

	_, err := g.Enrich(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.False(t, domain.IsRetryable(err), "a missing tenant must dead-letter even when other reads fail first")
}
