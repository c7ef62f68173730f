package repository

import (
	"context"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// AttemptRepository is the append-only audit trail of channel sends.
// The pgx implementation is in pg_attempt_repo.go.
// Tests use a hand-written in-memory version (mock_attempt_repo.go).
type AttemptRepository interface {
	// Record inserts attempts atomically. Rows are never updated.
	Record(ctx context.Context, attempts []domain.DeliveryAttempt) error
	// DeliveredChannels returns the provider delivery id of every channel
	// already sent for eventID on an earlier delivery.
	DeliveredChannels(ctx context.Context, eventID string) (map[domain.Channel]string, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.DeliveryAttempt, error)
	List(ctx context.Context, filter domain.AttemptFilter) ([]domain.DeliveryAttempt, int, error)
}
