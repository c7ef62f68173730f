package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceLine is one booked service on an appointment.
type ServiceLine struct {
	Name    string          `json:"name"`
	Minutes int             `json:"durationMinutes"`
	Price   decimal.Decimal `json:"price"`
}

// Appointment is the directory view of a booking.
type Appointment struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	ClientID  string        `json:"clientId"`
	StylistID string        `json:"stylistId"`
	StartsAt  time.Time     `json:"startsAt"`
	EndsAt    time.Time     `json:"endsAt"`
	Services  []ServiceLine `json:"services"`
	Notes     string        `json:"notes,omitempty"`
}

// Total sums the service prices.
func (a Appointment) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Services {
		total = total.Add(s.Price)
	}
	return total
}

// Client is the person the appointment is for and the only notification recipient.
type Client struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	DeviceTokens []string `json:"deviceTokens,omitempty"`
}

func (c Client) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Stylist is the staff member performing the appointment.
type Stylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageContext is everything the renderer needs for one event.
type MessageContext struct {
	Event       NotificationEvent
	Branding    TenantBrandingProfile
	Appointment Appointment
	Client      Client
	Stylist     Stylist
}

// Recipient is where each channel should deliver. An empty field means the
// channel has no address and is skipped.
type Recipient struct {
	Name      string
	Email     string
	Phone     string
	UserID    string
	HasDevice bool
}

// Address returns the address for ch, or "" if there is none.
func (r Recipient) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	case ChannelPush:
		if r.HasDevice {
			return r.UserID
		}
	}
	return ""
}

// Recipient derives the delivery addresses from the client record.
func (m MessageContext) Recipient() Recipient {
	return Recipient{
		Name:      m.Client.FullName(),
		Email:     m.Client.Email,
		Phone:     m.Client.Phone,
		UserID:    m.Client.ID,
		HasDevice: len(m.Client.DeviceTokens) > 0,
	}
}

// RenderedContent holds every representation of one notification.
type RenderedContent struct {
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	Text      string `json:"text"`
	SMS       string `json:"sms"`
	PushTitle string `json:"pushTitle"`
	PushBody  string `json:"pushBody"`
}
