package domain

import "time"

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AllChannels lists the channels every event fans out to, in dispatch order.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush}
}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// DeliveryStatus is the outcome of one channel send.
type DeliveryStatus string

const (
	StatusSent             DeliveryStatus = "sent"
	StatusSkippedNoAddress DeliveryStatus = "skipped-no-address"
	StatusFailed           DeliveryStatus = "failed"
)

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusSent, StatusSkippedNoAddress, StatusFailed:
		return true
	}
	return false
}

// DeliveryAttempt is an append-only record of one channel send for one
// delivery of an event. Error is set iff Status is StatusFailed.
type DeliveryAttempt struct {
	ID                 string         `json:"id"`
	EventID            string         `json:"event_id"`
	TenantID           string         `json:"tenant_id"`
	Kind               EventKind      `json:"kind"`
	Channel            Channel        `json:"channel"`
	Status             DeliveryStatus `json:"status"`
	Recipient          string         `json:"recipient,omitempty"`
	ProviderDeliveryID string         `json:"provider_delivery_id,omitempty"`
	Error              string         `json:"error,omitempty"`
	Attempt            int            `json:"attempt"`
	Duplicate          bool           `json:"duplicate"`
	CreatedAt          time.Time      `json:"created_at"`

	// Temporary marks a failure the transport reported as transient.
	// It drives the retry decision and is not persisted.
	Temporary bool `json:"-"`
}

// AttemptFilter holds query parameters for paginated attempt listing.
type AttemptFilter struct {
	TenantID *string
	Channel  *Channel
	Status   *DeliveryStatus
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}
