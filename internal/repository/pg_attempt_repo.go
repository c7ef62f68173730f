package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

const attemptColumns = `id, event_id, tenant_id, kind, channel, status, recipient,
	provider_delivery_id, error, attempt, duplicate, created_at`

type pgAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewPgAttemptRepository returns an AttemptRepository backed by PostgreSQL.
func NewPgAttemptRepository(pool *pgxpool.Pool) AttemptRepository {
	return &pgAttemptRepository{pool: pool}
}

func (r *pgAttemptRepository) Record(ctx context.Context, attempts []domain.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, a := range attempts {
		_, err = tx.Exec(ctx, `
			INSERT INTO delivery_attempts (`+attemptColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			a.ID, a.EventID, a.TenantID, a.Kind, a.Channel, a.Status, a.Recipient,
			nullable(a.ProviderDeliveryID), nullable(a.Error), a.Attempt, a.Duplicate, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert delivery attempt: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery attempts: %w", err)
	}
	return nil
}

func (r *pgAttemptRepository) DeliveredChannels(ctx context.Context, eventID string) (map[domain.Channel]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (channel) channel, COALESCE(provider_delivery_id, '')
		FROM delivery_attempts
		WHERE event_id = $1 AND status = 'sent'
		ORDER BY channel, created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query delivered channels: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Channel]string)
	for rows.Next() {
		var ch domain.Channel
		var id string
		if err := rows.Scan(&ch, &id); err != nil {
			return nil, fmt.Errorf("scan delivered channel: %w", err)
		}
		out[ch] = id
	}
	return out, rows.Err()
}

func (r *pgAttemptRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.DeliveryAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM delivery_attempts
		WHERE event_id = $1
		ORDER BY created_at, channel`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attempts by event: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (r *pgAttemptRepository) List(ctx context.Context, f domain.AttemptFilter) ([]domain.DeliveryAttempt, int, error) {
	where, args := buildListWhere(f)
	offset := (f.Page - 1) * f.Limit

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM delivery_attempts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count delivery attempts: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM delivery_attempts%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, attemptColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts, err := scanAttempts(rows)
	return attempts, total, err
}

// ---- helpers ----

func buildListWhere(f domain.AttemptFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.TenantID != nil {
		add("tenant_id = $%d", *f.TenantID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Channel != nil {
		add("channel = $%d", *f.Channel)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanAttempts(rows pgx.Rows) ([]domain.DeliveryAttempt, error) {
	var result []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		var providerID, errMsg *string
		if err := rows.Scan(
			&a.ID, &a.EventID, &a.TenantID, &a.Kind, &a.Channel, &a.Status, &a.Recipient,
			&providerID, &errMsg, &a.Attempt, &a.Duplicate, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		if providerID != nil {
			a.ProviderDeliveryID = *providerID
		}
		if errMsg != nil {
			a.Error = *errMsg
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
