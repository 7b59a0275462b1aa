package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type transitionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderTransitionStore создаёт транзакционную запись перехода статуса заказа:
// orders, timeline_events и outbox_messages меняются вместе или не меняются вовсе.
func NewOrderTransitionStore(store *Store) domain.OrderTransitionStore {
	return &transitionStore{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *transitionStore) SaveTransition(ctx context.Context, order domain.Order, event *domain.TimelineEvent, msg *domain.OutboxMessage) error {
	var timeline *domain.TimelineEvent
	if event != nil {
		if err := event.Validate(); err != nil {
			return err
		}
		ev := *event
		if ev.Occurred.IsZero() {
			ev.Occurred = s.now()
		}
		timeline = &ev
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateOrder(ctx, tx, order); err != nil {
		return err
	}
	if timeline != nil {
		if err := insertTimelineEvent(ctx, tx, *timeline); err != nil {
			return err
		}
	}
	if msg != nil {
		if _, err := insertOutboxMessage(ctx, tx, *msg, s.now()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition for order %s: %w", order.ID, err)
	}
	return nil
}

var _ domain.OrderTransitionStore = (*transitionStore)(nil)
