package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type webhookEventRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewWebhookEventRepository создаёт журнал дедупликации webhook поверх таблицы webhook_events.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

const webhookEventColumns = `event_id, event_type, payment_intent_id, status, attempts, expires_at, created_at, updated_at`

// Истёкшая запись заменяется целиком. Живая незавершённая запись сохраняет
// исходные тип и intent, меняются только статус, счётчик попыток и срок.
// Живая обработанная запись не обновляется, RETURNING тогда пуст.
const claimWebhookEventSQL = `
	INSERT INTO webhook_events (` + webhookEventColumns + `)
	VALUES ($1, $2, $3, 'processing', 1, $4, $5, $5)
	ON CONFLICT (event_id) DO UPDATE SET
		event_type = CASE WHEN webhook_events.expires_at <= EXCLUDED.created_at
			THEN EXCLUDED.event_type ELSE webhook_events.event_type END,
		payment_intent_id = CASE WHEN webhook_events.expires_at <= EXCLUDED.created_at
			THEN EXCLUDED.payment_intent_id ELSE webhook_events.payment_intent_id END,
		attempts = CASE WHEN webhook_events.expires_at <= EXCLUDED.created_at
			THEN 1 ELSE webhook_events.attempts + 1 END,
		created_at = CASE WHEN webhook_events.expires_at <= EXCLUDED.created_at
			THEN EXCLUDED.created_at ELSE webhook_events.created_at END,
		status = 'processing',
		expires_at = EXCLUDED.expires_at,
		updated_at = EXCLUDED.updated_at
	WHERE webhook_events.status <> 'handled' OR webhook_events.expires_at <= EXCLUDED.created_at
	RETURNING ` + webhookEventColumns

func (r *webhookEventRepository) Claim(
	ctx context.Context,
	event domain.WebhookEvent,
	expiresAt time.Time,
) (domain.ProcessedWebhookEvent, bool, error) {
	if event.ID == "" {
		return domain.ProcessedWebhookEvent{}, false, domain.ErrWebhookEventIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entry, err := scanWebhookEvent(r.db.QueryRowContext(ctx, claimWebhookEventSQL,
		event.ID, string(event.Type), event.PaymentIntentID, expiresAt, r.now(),
	))
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, domain.ErrWebhookEventNotFound):
		existing, getErr := r.Get(ctx, event.ID)
		if getErr != nil {
			return domain.ProcessedWebhookEvent{}, false, getErr
		}
		return existing, false, nil
	default:
		return domain.ProcessedWebhookEvent{}, false, fmt.Errorf("claim webhook event: %w", err)
	}
}

func (r *webhookEventRepository) Get(ctx context.Context, eventID string) (domain.ProcessedWebhookEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entry, err := scanWebhookEvent(r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE event_id = $1`, eventID))
	if err != nil {
		return domain.ProcessedWebhookEvent{}, fmt.Errorf("select webhook event: %w", err)
	}
	return entry, nil
}

func (r *webhookEventRepository) MarkHandled(ctx context.Context, eventID string) error {
	return r.setStatus(ctx, eventID, domain.WebhookEventHandled)
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string) error {
	return r.setStatus(ctx, eventID, domain.WebhookEventFailed)
}

func (r *webhookEventRepository) setStatus(ctx context.Context, eventID string, status domain.WebhookEventStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $2, updated_at = $3 WHERE event_id = $1`,
		eventID, string(status), r.now(),
	)
	if err != nil {
		return fmt.Errorf("update webhook event status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("webhook event rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookEventNotFound
	}
	return nil
}

// DeleteExpired удаляет порцию истёкших записей, начиная с самых старых.
func (r *webhookEventRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE event_id IN (
			SELECT event_id FROM webhook_events
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("webhook event rows affected: %w", err)
	}
	return int(deleted), nil
}

func scanWebhookEvent(row *sql.Row) (domain.ProcessedWebhookEvent, error) {
	var (
		entry     domain.ProcessedWebhookEvent
		eventType string
		status    string
	)
	err := row.Scan(
		&entry.EventID, &eventType, &entry.PaymentIntentID, &status,
		&entry.Attempts, &entry.ExpiresAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessedWebhookEvent{}, domain.ErrWebhookEventNotFound
	}
	if err != nil {
		return domain.ProcessedWebhookEvent{}, err
	}

	entry.EventType = domain.WebhookEventType(eventType)
	entry.Status = domain.WebhookEventStatus(status)
	entry.ExpiresAt = entry.ExpiresAt.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
