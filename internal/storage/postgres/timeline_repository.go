package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт историю заказов поверх таблицы timeline_events.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return insertTimelineEvent(ctx, r.db, event)
}

func insertTimelineEvent(ctx context.Context, q sqlExecutor, event domain.TimelineEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, from_status, to_status, reason, occurred)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.OrderID, string(event.Type), string(event.FromStatus), string(event.ToStatus), event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("insert timeline event for order %s: %w", event.OrderID, err)
	}
	return nil
}

// List сортирует по occurred, а при равенстве по порядку вставки.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, from_status, to_status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select timeline for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var typ, from, to string
		if err := rows.Scan(&typ, &from, &to, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Type = domain.TimelineEventType(typ)
		event.FromStatus = domain.OrderStatus(from)
		event.ToStatus = domain.OrderStatus(to)
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
