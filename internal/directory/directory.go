// Package directory talks to the read-only tenant and appointment directories
// that hydrate an event before rendering.
package directory

import (
	"context"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// Tenants resolves a tenant's branding. It returns domain.ErrTenantNotFound
// only when the directory confirms the tenant does not exist.
type Tenants interface {
	GetTenant(ctx context.Context, tenantID string) (domain.TenantBrandingProfile, error)
}

// Appointments resolves the appointment, client and stylist records of a tenant.
type Appointments interface {
	GetAppointment(ctx context.Context, tenantID, appointmentID string) (domain.Appointment, error)
	GetClient(ctx context.Context, tenantID, userID string) (domain.Client, error)
	GetStylist(ctx context.Context, tenantID, stylistID string) (domain.Stylist, error)
}
