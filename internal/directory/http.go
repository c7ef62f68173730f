package directory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// tenantResponse is the Tenant Directory body. Branding is null for tenants
// that never configured it.
type tenantResponse struct {
	ID       string                        `json:"id"`
	Name     string                        `json:"name"`
	Branding *domain.TenantBrandingProfile `json:"branding"`
}

// HTTPTenants reads GET {base}/tenants/{id}.
type HTTPTenants struct {
	c *baseClient
}

func NewHTTPTenants(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPTenants {
	return &HTTPTenants{c: newBaseClient("tenant-directory", baseURL, timeout, logger)}
}

func (t *HTTPTenants) GetTenant(ctx context.Context, tenantID string) (domain.TenantBrandingProfile, error) {
	var resp tenantResponse
	if err := t.c.getJSON(ctx, &resp, "tenants", tenantID); err != nil {
		if isNotFound(err) {
			return domain.TenantBrandingProfile{}, fmt.Errorf("%w: %s", domain.ErrTenantNotFound, tenantID)
		}
		return domain.TenantBrandingProfile{}, fmt.Errorf("get tenant %s: %w", tenantID, err)
	}

	if resp.Branding == nil {
		b := domain.DefaultBranding(tenantID)
		if resp.Name != "" {
			b.Name = resp.Name
		}
		return b, nil
	}
	b := *resp.Branding
	b.TenantID = tenantID
	if b.Name == "" {
		b.Name = resp.Name
	}
	return b.WithDefaults(), nil
}

func (t *HTTPTenants) Close() { t.c.close() }

// HTTPAppointments reads the appointment directory under
// {base}/tenants/{tenantId}/{appointments|users|stylists}/{id}.
type HTTPAppointments struct {
	c *baseClient
}

func NewHTTPAppointments(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPAppointments {
	return &HTTPAppointments{c: newBaseClient("appointment-directory", baseURL, timeout, logger)}
}

func (a *HTTPAppointments) GetAppointment(ctx context.Context, tenantID, appointmentID string) (domain.Appointment, error) {
	var appt domain.Appointment
	if err := a.get(ctx, &appt, tenantID, "appointments", appointmentID); err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (a *HTTPAppointments) GetClient(ctx context.Context, tenantID, userID string) (domain.Client, error) {
	var c domain.Client
	if err := a.get(ctx, &c, tenantID, "users", userID); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (a *HTTPAppointments) GetStylist(ctx context.Context, tenantID, stylistID string) (domain.Stylist, error) {
	var s domain.Stylist
	if err := a.get(ctx, &s, tenantID, "stylists", stylistID); err != nil {
		return domain.Stylist{}, err
	}
	return s, nil
}

func (a *HTTPAppointments) get(ctx context.Context, out any, tenantID, collection, id string) error {
	if err := a.c.getJSON(ctx, out, "tenants", tenantID, collection, id); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s %s: %w", collection, id, domain.ErrNotFound)
		}
		return fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return nil
}

func (a *HTTPAppointments) Close() { a.c.close() }

var (
	_ Tenants      = (*HTTPTenants)(nil)
	_ Appointments = (*HTTPAppointments)(nil)
)
