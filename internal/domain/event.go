package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EventKind is the appointment lifecycle event that triggered a notification.
// The set is closed: anything outside AllEventKinds is rejected at decode time.
type EventKind string

const (
	KindCreated   EventKind = "appointment.created"
	KindUpdated   EventKind = "appointment.updated"
	KindCancelled EventKind = "appointment.cancelled"
	KindConfirmed EventKind = "appointment.confirmed"
	KindCompleted EventKind = "appointment.completed"
	KindNoShow    EventKind = "appointment.no_show"
)

// AllEventKinds returns every supported kind in a stable order.
func AllEventKinds() []EventKind {
	return []EventKind{
		KindCreated,
		KindUpdated,
		KindCancelled,
		KindConfirmed,
		KindCompleted,
		KindNoShow,
	}
}

func (k EventKind) IsValid() bool {
	switch k {
	case KindCreated, KindUpdated, KindCancelled, KindConfirmed, KindCompleted, KindNoShow:
		return true
	}
	return false
}

// Short returns the kind without its "appointment." prefix, e.g. "no_show".
func (k EventKind) Short() string {
	return strings.TrimPrefix(string(k), "appointment.")
}

// ParseEventKind accepts the wire value ("appointment.no_show") as well as the
// short forms producers tend to send ("NoShow", "no_show", "cancelled").
func ParseEventKind(s string) (EventKind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "appointment.")
	norm = strings.ReplaceAll(norm, "-", "_")
	if norm == "noshow" {
		norm = "no_show"
	}
	k := EventKind("appointment." + norm)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// NotificationEvent is one decoded appointment lifecycle event.
// It is treated as immutable once ParseEvent returns it.
type NotificationEvent struct {
	ID            string         `json:"eventId"`
	Kind          EventKind      `json:"kind"`
	TenantID      string         `json:"tenantId" validate:"required"`
	AppointmentID string         `json:"appointmentId" validate:"required"`
	UserID        string         `json:"userId,omitempty"`
	StylistID     string         `json:"stylistId,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// PayloadString returns a string field from the free-form payload, or "".
func (e NotificationEvent) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// EventSource carries the broker-side fallbacks for fields the body may omit.
type EventSource struct {
	MessageID  string
	RoutingKey string
	TenantID   string // from the x-tenant-id header
}

// wireEvent mirrors NotificationEvent with a string kind so unknown kinds can
// be reported instead of failing JSON decoding.
type wireEvent struct {
	ID            string         `json:"eventId"`
	Kind          string         `json:"kind"`
	TenantID      string         `json:"tenantId"`
	AppointmentID string         `json:"appointmentId"`
	UserID        string         `json:"userId"`
	StylistID     string         `json:"stylistId"`
	OccurredAt    *time.Time     `json:"occurredAt"`
	Payload       map[string]any `json:"payload"`
}

var (
	validate         = validator.New()
	eventIDNamespace = uuid.MustParse("6f1c3a7e-8d2b-4b7a-9e55-2c0d7b0f4a11")
)

// ParseEvent decodes a broker message body into a NotificationEvent.
//
// Every error it returns is permanent: a redelivery of the same bytes cannot
// decode any differently.
func ParseEvent(body []byte, src EventSource) (NotificationEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return NotificationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	rawKind := w.Kind
	if rawKind == "" {
		rawKind = src.RoutingKey
	}
	kind, err := ParseEventKind(rawKind)
	if err != nil {
		return NotificationEvent{}, err
	}

	evt := NotificationEvent{
		ID:            w.ID,
		Kind:          kind,
		TenantID:      strings.TrimSpace(w.TenantID),
		AppointmentID: strings.TrimSpace(w.AppointmentID),
		UserID:        strings.TrimSpace(w.UserID),
		StylistID:     strings.TrimSpace(w.StylistID),
		Payload:       w.Payload,
	}
	if evt.TenantID == "" {
		evt.TenantID = strings.TrimSpace(src.TenantID)
	}
	if w.OccurredAt != nil {
		evt.OccurredAt = w.OccurredAt.UTC()
	}
	if evt.ID == "" {
		evt.ID = src.MessageID
	}
	if evt.ID == "" {
		evt.ID = uuid.NewSHA1(eventIDNamespace, body).String()
	}

	if err := validate.Struct(evt); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "TenantID" {
					return NotificationEvent{}, ErrMissingTenant
				}
			}
		}
		return NotificationEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return evt, nil
}

// DeliveryMeta is the broker-side context of one delivery of an event.
type DeliveryMeta struct {
	MessageID   string
	RoutingKey  string
	Attempt     int
	Redelivered bool
	Headers     map[string]any
}
