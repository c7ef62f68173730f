package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/salon-notifier/internal/directory"
	"github.com/notifyhub/salon-notifier/internal/domain"
)

// Gateway hydrates an event into a MessageContext. It is the only place the
// pipeline reads the directories, so a failure here is always an "enrich"
// stage failure and never a send failure.
type Gateway struct {
	tenants      directory.Tenants
	appointments directory.Appointments
	timeout      time.Duration
	logger       *zap.Logger
}

func New(tenants directory.Tenants, appointments directory.Appointments, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{tenants: tenants, appointments: appointments, timeout: timeout, logger: logger}
}

// Enrich reads tenant, appointment, client and stylist in parallel, each bounded
// by its own timeout. A confirmed missing tenant is permanent; every other
// failure, including a timeout, is retryable.
func (g *Gateway) Enrich(ctx context.Context, evt domain.NotificationEvent) (domain.MessageContext, error) {
	mc := domain.MessageContext{Event: evt}

	// The client and stylist ids may only be known from the appointment, so
	// those reads wait on it when the event omits them.
	apptReady := make(chan struct{})
	var apptOK bool
	var tenantErr error

	// A failed read does not cancel its siblings; the tenant read always
	// completes so a missing tenant is never reported as a cancellation.
	var eg errgroup.Group

	eg.Go(func() error {
		b, err := withTimeout(ctx, g.timeout, func(c context.Context) (domain.TenantBrandingProfile, error) {
			return g.tenants.GetTenant(c, evt.TenantID)
		})
		if err != nil {
			tenantErr = fmt.Errorf("tenant %s: %w", evt.TenantID, err)
			return tenantErr
		}
		mc.Branding = b
		return nil
	})

	eg.Go(func() error {
		defer close(apptReady)
		a, err := withTimeout(ctx, g.timeout, func(c context.Context) (domain.Appointment, error) {
			return g.appointments.GetAppointment(c, evt.TenantID, evt.AppointmentID)
		})
		if err != nil {
			return fmt.Errorf("appointment %s: %w", evt.AppointmentID, err)
		}
		mc.Appointment = a
		apptOK = true
		return nil
	})

	eg.Go(func() error {
		userID := evt.UserID
		if userID == "" {
			<-apptReady
			if !apptOK {
				return nil
			}
			userID = mc.Appointment.ClientID
		}
		if userID == "" {
			return fmt.Errorf("appointment %s has no client: %w", evt.AppointmentID, domain.ErrNotFound)
		}
		c, err := withTimeout(ctx, g.timeout, func(c context.Context) (domain.Client, error) {
			return g.appointments.GetClient(c, evt.TenantID, userID)
		})
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, err)
		}
		mc.Client = c
		return nil
	})

	eg.Go(func() error {
		stylistID := evt.StylistID
		if stylistID == "" {
			<-apptReady
			if !apptOK {
				return nil
			}
			stylistID = mc.Appointment.StylistID
		}
		// An unassigned stylist is not an error; templates omit the line.
		if stylistID == "" {
			return nil
		}
		s, err := withTimeout(ctx, g.timeout, func(c context.Context) (domain.Stylist, error) {
			return g.appointments.GetStylist(c, evt.TenantID, stylistID)
		})
		if err != nil {
			return fmt.Errorf("stylist %s: %w", stylistID, err)
		}
		mc.Stylist = s
		return nil
	})

	if err := eg.Wait(); err != nil {
		g.logger.Debug("enrichment failed",
			zap.String("event_id", evt.ID),
			zap.String("tenant_id", evt.TenantID),
			zap.Error(err),
		)
		// All reads have finished; a confirmed missing tenant decides.
		if errors.Is(tenantErr, domain.ErrTenantNotFound) {
			return domain.MessageContext{}, domain.Permanent(domain.StageEnrich, tenantErr)
		}
		return domain.MessageContext{}, domain.Retryable(domain.StageEnrich, err)
	}

	return mc, nil
}

// withTimeout runs fn under its own deadline so one hung directory cannot
// consume the budget of the others.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	v, err := fn(cctx)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return v, fmt.Errorf("timed out after %s: %w", d, err)
	}
	return v, err
}
