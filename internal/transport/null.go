package transport

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Null logs every send and reports success with a synthetic id.
// It serves all three channels and is selected by config, never as a silent
// fallback for missing credentials.
type Null struct {
	logger *zap.Logger
}

func NewNull(logger *zap.Logger) *Null {
	return &Null{logger: logger}
}

func (n *Null) SendEmail(_ context.Context, msg EmailMessage) (string, error) {
	id := "null-" + uuid.NewString()
	n.logger.Info("null email transport", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.String("delivery_id", id))
	return id, nil
}

func (n *Null) SendSMS(_ context.Context, to, message string) (string, error) {
	id := "null-" + uuid.NewString()
	n.logger.Info("null sms transport", zap.String("to", to), zap.Int("length", len(message)), zap.String("delivery_id", id))
	return id, nil
}

func (n *Null) SendPush(_ context.Context, msg PushMessage) (string, error) {
	id := "null-" + uuid.NewString()
	n.logger.Info("null push transport", zap.String("user_id", msg.UserID), zap.String("title", msg.Title), zap.String("delivery_id", id))
	return id, nil
}

func (n *Null) Close() error { return nil }

var (
	_ EmailTransport = (*Null)(nil)
	_ SMSTransport   = (*Null)(nil)
	_ PushTransport  = (*Null)(nil)
)
