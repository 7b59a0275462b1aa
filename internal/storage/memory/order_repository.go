package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orders хранит заказы и индекс payment intent -> order id.
// Один intent принадлежит не более чем одному заказу.
type orders struct {
	mu       sync.RWMutex
	byID     map[string]domain.Order
	byIntent map[string]string
}

// NewOrderRepository создаёт пустое хранилище заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orders{
		byID:     make(map[string]domain.Order),
		byIntent: make(map[string]string),
	}
}

func (r *orders) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if err := r.bindIntent(order.ID, "", order.PaymentIntentID); err != nil {
		return err
	}
	r.byID[order.ID] = order
	return nil
}

func (r *orders) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.byID[id]; ok {
		return order, nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (r *orders) FindByPaymentIntentID(_ context.Context, paymentIntentID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if paymentIntentID != "" {
		if id, ok := r.byIntent[paymentIntentID]; ok {
			return r.byID[id], nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// Save заменяет заказ, если order.Version совпадает с сохранённой, и увеличивает версию.
func (r *orders) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	if err := r.bindIntent(order.ID, stored.PaymentIntentID, order.PaymentIntentID); err != nil {
		return err
	}
	order.Version++
	r.byID[order.ID] = order
	return nil
}

// bindIntent переносит индекс с prev на next. Вызывается под блокировкой.
func (r *orders) bindIntent(orderID, prev, next string) error {
	if prev == next {
		return nil
	}
	if owner, taken := r.byIntent[next]; next != "" && taken && owner != orderID {
		return domain.ErrPaymentIntentTaken
	}
	delete(r.byIntent, prev)
	if next != "" {
		r.byIntent[next] = orderID
	}
	return nil
}

var _ domain.OrderRepository = (*orders)(nil)
