package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	keyPrefix        = "basket:"
	defaultBasketTTL = 30 * 24 * time.Hour
)

// BasketRepository хранит корзины как JSON под ключом basket:<id> с TTL.
type BasketRepository struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewBasketRepository создаёт хранилище. ttl <= 0 означает 30 дней.
func NewBasketRepository(client goredis.UniversalClient, ttl time.Duration) *BasketRepository {
	if ttl <= 0 {
		ttl = defaultBasketTTL
	}
	return &BasketRepository{client: client, ttl: ttl}
}

func basketKey(id string) string {
	return keyPrefix + id
}

// Get возвращает корзину или ErrBasketNotFound.
func (r *BasketRepository) Get(ctx context.Context, id string) (domain.Basket, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Basket{}, domain.ErrBasketIDRequired
	}
	data, err := r.client.Get(ctx, basketKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Basket{}, domain.ErrBasketNotFound
	}
	if err != nil {
		return domain.Basket{}, fmt.Errorf("get basket %s: %w", id, err)
	}
	return decodeBasket(data)
}

// Save записывает корзину, если её версия не изменилась с момента чтения.
// Проверка и запись выполняются под WATCH, конкурирующая запись даёт ErrBasketVersionConflict.
func (r *BasketRepository) Save(ctx context.Context, basket *domain.Basket) error {
	if basket == nil || strings.TrimSpace(basket.ID) == "" {
		return domain.ErrBasketIDRequired
	}
	key := basketKey(basket.ID)

	next := basket.Clone()
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal basket %s: %w", basket.ID, err)
	}

	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			if basket.Version != 0 {
				return domain.ErrBasketVersionConflict
			}
		case err != nil:
			return err
		default:
			stored, err := decodeBasket(current)
			if err != nil {
				return err
			}
			if stored.Version != basket.Version {
				return domain.ErrBasketVersionConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		basket.Version = next.Version
		return nil
	case errors.Is(err, goredis.TxFailedErr), errors.Is(err, domain.ErrBasketVersionConflict):
		return domain.ErrBasketVersionConflict
	default:
		return fmt.Errorf("save basket %s: %w", basket.ID, err)
	}
}

// Put записывает корзину без проверки версии (наполнение данными, тесты).
func (r *BasketRepository) Put(ctx context.Context, basket domain.Basket) error {
	data, err := json.Marshal(basket)
	if err != nil {
		return fmt.Errorf("marshal basket %s: %w", basket.ID, err)
	}
	return r.client.Set(ctx, basketKey(basket.ID), data, r.ttl).Err()
}

// Delete удаляет корзину.
func (r *BasketRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, basketKey(id)).Err()
}

func decodeBasket(data []byte) (domain.Basket, error) {
	var basket domain.Basket
	if err := json.Unmarshal(data, &basket); err != nil {
		return domain.Basket{}, fmt.Errorf("decode basket: %w", err)
	}
	return basket, nil
}

var _ domain.BasketRepository = (*BasketRepository)(nil)
