package render

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// SampleContext returns a fixed context used to preview templates.
func SampleContext(kind domain.EventKind, branding domain.TenantBrandingProfile) domain.MessageContext {
	start := time.Date(2026, time.March, 14, 15, 30, 0, 0, time.UTC)
	return domain.MessageContext{
		Event: domain.NotificationEvent{
			ID:            "preview",
			Kind:          kind,
			TenantID:      branding.TenantID,
			AppointmentID: "appt-preview",
			UserID:        "client-preview",
			StylistID:     "stylist-preview",
			OccurredAt:    start.Add(-48 * time.Hour),
			Payload:       map[string]any{"reason": "Schedule change"},
		},
		Branding: branding,
		Appointment: domain.Appointment{
			ID:        "appt-preview",
			TenantID:  branding.TenantID,
			ClientID:  "client-preview",
			StylistID: "stylist-preview",
			StartsAt:  start,
			EndsAt:    start.Add(75 * time.Minute),
			Services: []domain.ServiceLine{
				{Name: "Haircut", Minutes: 45, Price: decimal.RequireFromString("50.00")},
				{Name: "Blow dry", Minutes: 30, Price: decimal.RequireFromString("25.00")},
			},
		},
		Client: domain.Client{
			ID:        "client-preview",
			FirstName: "Jane",
			LastName:  "Doe",
			Email:     "jane@example.com",
			Phone:     "+15555550100",
		},
		Stylist: domain.Stylist{ID: "stylist-preview", Name: "Sam"},
	}
}
