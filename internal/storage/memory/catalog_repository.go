package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// catalogInMemory: справочник товаров и способов доставки в памяти.
type catalogInMemory struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	delivery map[int64]domain.DeliveryMethod
}

// NewCatalog создаёт пустой in-memory каталог. Реализует ProductRepository и DeliveryMethodRepository.
func NewCatalog() *catalogInMemory {
	return &catalogInMemory{
		products: make(map[int64]domain.Product),
		delivery: make(map[int64]domain.DeliveryMethod),
	}
}

// PutProduct добавляет или заменяет товар.
func (c *catalogInMemory) PutProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// PutDeliveryMethod добавляет или заменяет способ доставки.
func (c *catalogInMemory) PutDeliveryMethod(dm domain.DeliveryMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivery[dm.ID] = dm
}

// GetByID возвращает товар или ErrProductNotFound.
func (c *catalogInMemory) GetByID(_ context.Context, id int64) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// DeliveryMethods возвращает представление каталога как DeliveryMethodRepository.
func (c *catalogInMemory) DeliveryMethods() domain.DeliveryMethodRepository {
	return deliveryMethodsView{c: c}
}

type deliveryMethodsView struct {
	c *catalogInMemory
}

func (v deliveryMethodsView) GetByID(_ context.Context, id int64) (domain.DeliveryMethod, error) {
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()

	dm, ok := v.c.delivery[id]
	if !ok {
		return domain.DeliveryMethod{}, domain.ErrDeliveryMethodNotFound
	}
	return dm, nil
}

var (
	_ domain.ProductRepository        = (*catalogInMemory)(nil)
	_ domain.DeliveryMethodRepository = deliveryMethodsView{}
)
