package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// basketRepositoryInMemory хранит корзины в памяти (для разработки/тестов).
type basketRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Basket
}

// NewBasketRepository создаёт in-memory реализацию BasketRepository.
func NewBasketRepository() *basketRepositoryInMemory {
	return &basketRepositoryInMemory{items: make(map[string]domain.Basket)}
}

// Put кладёт корзину без проверки версии. Используется для наполнения хранилища в тестах и dev-режиме.
func (r *basketRepositoryInMemory) Put(basket domain.Basket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[basket.ID] = basket.Clone()
}

// Get возвращает копию корзины или ErrBasketNotFound.
func (r *basketRepositoryInMemory) Get(_ context.Context, id string) (domain.Basket, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Basket{}, domain.ErrBasketIDRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	basket, ok := r.items[id]
	if !ok {
		return domain.Basket{}, domain.ErrBasketNotFound
	}
	return basket.Clone(), nil
}

// Save перезаписывает корзину, проверяя версию (optimistic locking).
// Новая корзина принимается только с Version == 0.
func (r *basketRepositoryInMemory) Save(_ context.Context, basket *domain.Basket) error {
	if basket == nil || strings.TrimSpace(basket.ID) == "" {
		return domain.ErrBasketIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[basket.ID]
	if (ok && current.Version != basket.Version) || (!ok && basket.Version != 0) {
		return domain.ErrBasketVersionConflict
	}

	basket.Version++
	r.items[basket.ID] = basket.Clone()
	return nil
}

var _ domain.BasketRepository = (*basketRepositoryInMemory)(nil)
