// Package transport holds the channel senders the dispatcher fans out to.
// Every implementation is selected once at startup; runtime code never checks
// whether it is talking to a real provider.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// EmailMessage is a fully rendered email.
type EmailMessage struct {
	To       string
	Subject  string
	HTML     string
	Text     string
	FromName string
	ReplyTo  string
}

// PushMessage is a push notification addressed to a user's registered devices.
type PushMessage struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]string
}

// EmailTransport sends email and returns the provider's delivery id.
type EmailTransport interface {
	SendEmail(ctx context.Context, msg EmailMessage) (string, error)
	Close() error
}

// SMSTransport sends a text message and returns the provider's delivery id.
type SMSTransport interface {
	SendSMS(ctx context.Context, to, message string) (string, error)
	Close() error
}

// PushTransport sends a push notification and returns the provider's delivery id.
type PushTransport interface {
	SendPush(ctx context.Context, msg PushMessage) (string, error)
	Close() error
}

// Error is the typed failure every transport returns.
// Temporary reports whether the same send could succeed later.
type Error struct {
	Transport  string
	StatusCode int
	Temporary  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Transport, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Transport, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func temporary(name string, status int, err error) error {
	return &Error{Transport: name, StatusCode: status, Temporary: true, Err: err}
}

func permanent(name string, status int, err error) error {
	return &Error{Transport: name, StatusCode: status, Temporary: false, Err: err}
}

// IsTemporary reports whether err is worth retrying. Deadline expiry is
// temporary; anything that is not a permanent *Error is treated as temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Temporary
	}
	return true
}
