package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора корзины.
	ErrBasketIDRequired = errors.New("basket_id is required")
	// ErrBasketNotFound возвращается, если корзины нет в хранилище.
	ErrBasketNotFound = errors.New("basket not found")
	// ErrBasketVersionConflict сигнализирует, что корзину успели изменить параллельно.
	ErrBasketVersionConflict = errors.New("basket version conflict")
	// ErrProductNotFound: позиция корзины ссылается на товар, которого больше нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrDeliveryMethodNotFound: в корзине указан несуществующий способ доставки.
	ErrDeliveryMethodNotFound = errors.New("delivery method not found")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrPaymentIntentTaken: payment intent уже привязан к другому заказу.
	ErrPaymentIntentTaken = errors.New("payment intent already linked to another order")
	// ErrPaymentProvider: вызов платёжного провайдера завершился ошибкой (сеть, валидация).
	ErrPaymentProvider = errors.New("payment provider error")
	// ErrWebhookVerification: подпись входящего webhook не прошла проверку.
	ErrWebhookVerification = errors.New("webhook signature verification failed")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrWebhookEventIDRequired: событие без идентификатора нельзя записать в журнал.
	ErrWebhookEventIDRequired = errors.New("webhook event id is required")
	// ErrWebhookEventNotFound: события нет в журнале дедупликации.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
)

// IsNotFound сообщает, относится ли ошибка к отсутствующей сущности
// (корзина, товар, способ доставки, заказ).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBasketNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrDeliveryMethodNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrBasketVersionConflict)
}
