package checkout

import "github.com/vladislavdragonenkov/checkout/internal/domain"

// ComputeTotal возвращает сумму к оплате в минимальных единицах: позиции плюс доставка.
// delivery == nil означает отсутствие доставки. Строки с неположительным количеством
// или отрицательной ценой не учитываются, поэтому результат никогда не отрицателен.
func ComputeTotal(basket domain.Basket, delivery *domain.DeliveryMethod) int64 {
	var subtotal int64
	for _, item := range basket.Items {
		if item.Quantity <= 0 || item.Price.IsNegative() {
			continue
		}
		subtotal += int64(item.Quantity) * domain.MinorUnits(item.Price)
	}

	return subtotal + shippingMinor(delivery)
}

func shippingMinor(delivery *domain.DeliveryMethod) int64 {
	if delivery == nil || delivery.Price.IsNegative() {
		return 0
	}
	return domain.MinorUnits(delivery.Price)
}
