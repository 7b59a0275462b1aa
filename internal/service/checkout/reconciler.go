package checkout

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// PriceReconciler приводит цены позиций корзины к ценам каталога.
type PriceReconciler struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewPriceReconciler создаёт сверщик цен поверх репозитория товаров.
func NewPriceReconciler(products domain.ProductRepository, logger *log.Entry) *PriceReconciler {
	if logger == nil {
		logger = log.New().WithField("component", "price-reconciler")
	}
	return &PriceReconciler{products: products, logger: logger}
}

// Reconcile перезаписывает устаревшие цены позиций ценой из каталога и возвращает
// количество исправленных позиций. Корзина не сохраняется.
// Товар, исчезнувший из каталога, считается ошибкой: списывать деньги за него нельзя.
func (r *PriceReconciler) Reconcile(ctx context.Context, basket *domain.Basket) (int, error) {
	corrected := 0
	for i := range basket.Items {
		item := &basket.Items[i]

		product, err := r.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return corrected, fmt.Errorf("reconcile product %d: %w", item.ProductID, err)
		}
		if item.Price.Equal(product.Price) {
			continue
		}

		r.logger.WithFields(log.Fields{
			"basket_id":     basket.ID,
			"product_id":    item.ProductID,
			"basket_price":  item.Price.String(),
			"catalog_price": product.Price.String(),
		}).Info("basket price differs from catalog, overwriting")

		item.Price = product.Price
		corrected++
	}
	return corrected, nil
}
