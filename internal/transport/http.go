package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type emailRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html,omitempty"`
	Text     string `json:"text,omitempty"`
	FromName string `json:"fromName,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type pushRequest struct {
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// HTTPEmail sends email through a JSON HTTP gateway.
type HTTPEmail struct {
	gw              *gateway
	defaultFromName string
}

func NewHTTPEmail(url, defaultFromName string, timeout time.Duration, logger *zap.Logger) *HTTPEmail {
	return &HTTPEmail{gw: newGateway("email-gateway", url, timeout, logger), defaultFromName: defaultFromName}
}

func (t *HTTPEmail) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	from := msg.FromName
	if from == "" {
		from = t.defaultFromName
	}
	return t.gw.post(ctx, emailRequest{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		FromName: from,
		ReplyTo:  msg.ReplyTo,
	})
}

func (t *HTTPEmail) Close() error {
	t.gw.close()
	return nil
}

// HTTPSMS sends text messages through a JSON HTTP gateway.
type HTTPSMS struct {
	gw *gateway
}

func NewHTTPSMS(url string, timeout time.Duration, logger *zap.Logger) *HTTPSMS {
	return &HTTPSMS{gw: newGateway("sms-gateway", url, timeout, logger)}
}

func (t *HTTPSMS) SendSMS(ctx context.Context, to, message string) (string, error) {
	return t.gw.post(ctx, smsRequest{To: to, Message: message})
}

func (t *HTTPSMS) Close() error {
	t.gw.close()
	return nil
}

// HTTPPush sends push notifications through a JSON HTTP gateway that owns
// the user to device-token mapping.
type HTTPPush struct {
	gw *gateway
}

func NewHTTPPush(url string, timeout time.Duration, logger *zap.Logger) *HTTPPush {
	return &HTTPPush{gw: newGateway("push-gateway", url, timeout, logger)}
}

func (t *HTTPPush) SendPush(ctx context.Context, msg PushMessage) (string, error) {
	return t.gw.post(ctx, pushRequest(msg))
}

func (t *HTTPPush) Close() error {
	t.gw.close()
	return nil
}

var (
	_ EmailTransport = (*HTTPEmail)(nil)
	_ SMSTransport   = (*HTTPSMS)(nil)
	_ PushTransport  = (*HTTPPush)(nil)
)
