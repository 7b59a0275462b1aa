package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// ProductRepository читает каталог товаров.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
// Цена хранится в NUMERIC и читается напрямую в decimal.Decimal.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product %d: %w", id, err)
	}
	return p, nil
}

// UpsertProduct добавляет товар или обновляет его цену. Используется сидерами и тестами.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price
	`, p.ID, p.Name, p.Price); err != nil {
		return fmt.Errorf("upsert product %d: %w", p.ID, err)
	}
	return nil
}

// DeliveryMethodRepository читает справочник способов доставки.
type DeliveryMethodRepository struct {
	db *sql.DB
}

// NewDeliveryMethodRepository создаёт PostgreSQL-реализацию DeliveryMethodRepository.
func NewDeliveryMethodRepository(store *Store) *DeliveryMethodRepository {
	return &DeliveryMethodRepository{db: store.DB()}
}

func (r *DeliveryMethodRepository) GetByID(ctx context.Context, id int64) (domain.DeliveryMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var dm domain.DeliveryMethod
	err := r.db.QueryRowContext(ctx, `
		SELECT id, short_name, delivery_time, description, price
		FROM delivery_methods
		WHERE id = $1
	`, id).Scan(&dm.ID, &dm.ShortName, &dm.DeliveryTime, &dm.Description, &dm.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DeliveryMethod{}, domain.ErrDeliveryMethodNotFound
		}
		return domain.DeliveryMethod{}, fmt.Errorf("select delivery method %d: %w", id, err)
	}
	return dm, nil
}

// UpsertDeliveryMethod добавляет или обновляет способ доставки.
func (r *DeliveryMethodRepository) UpsertDeliveryMethod(ctx context.Context, dm domain.DeliveryMethod) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_methods (id, short_name, delivery_time, description, price)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET short_name = EXCLUDED.short_name,
		    delivery_time = EXCLUDED.delivery_time,
		    description = EXCLUDED.description,
		    price = EXCLUDED.price
	`, dm.ID, dm.ShortName, dm.DeliveryTime, dm.Description, dm.Price); err != nil {
		return fmt.Errorf("upsert delivery method %d: %w", dm.ID, err)
	}
	return nil
}

var (
	_ domain.ProductRepository        = (*ProductRepository)(nil)
	_ domain.DeliveryMethodRepository = (*DeliveryMethodRepository)(nil)
)
