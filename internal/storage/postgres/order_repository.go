package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	pgUniqueViolation = "23505"

	ordersPaymentIntentIndex = "orders_payment_intent_id_uidx"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const selectOrderColumns = `
	SELECT id, buyer_email, status, COALESCE(payment_intent_id, ''), currency, amount_minor, version, created_at, updated_at
	FROM orders
`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, buyer_email, status, payment_intent_id, currency, amount_minor, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.BuyerEmail, string(order.Status), nullableString(order.PaymentIntentID),
		order.Currency, order.AmountMinor, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return mapOrderWriteError("insert order", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderColumns+` WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Order, error) {
	if paymentIntentID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Уникальный индекс по payment_intent_id гарантирует не более одной строки.
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderColumns+` WHERE payment_intent_id = $1`, paymentIntentID))
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order by payment intent: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return updateOrder(ctx, r.db, order)
}

// sqlExecutor покрывает *sql.DB и *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// updateOrder обновляет заказ при совпадении версии. Если строка не обновилась,
// отдельный запрос различает отсутствующий заказ и конфликт версий.
func updateOrder(ctx context.Context, q sqlExecutor, order domain.Order) error {
	var version int64
	err := q.QueryRowContext(ctx, `
		UPDATE orders
		SET buyer_email = $3, status = $4, payment_intent_id = $5,
		    currency = $6, amount_minor = $7, updated_at = $8,
		    version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`,
		order.ID, order.Version,
		order.BuyerEmail, string(order.Status), nullableString(order.PaymentIntentID),
		order.Currency, order.AmountMinor, order.UpdatedAt,
	).Scan(&version)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return mapOrderWriteError("update order", err)
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func scanOrder(row *sql.Row) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.BuyerEmail, &status, &order.PaymentIntentID, &order.Currency,
		&order.AmountMinor, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

// mapOrderWriteError переводит нарушение уникальности в доменные ошибки:
// занятый payment intent или повторный ID заказа.
func mapOrderWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == ordersPaymentIntentIndex {
			return domain.ErrPaymentIntentTaken
		}
		return domain.ErrOrderVersionConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
