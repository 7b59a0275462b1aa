package domain

import (
	"context"
	"time"
)

// BasketRepository хранит корзины покупателей.
type BasketRepository interface {
	// Get возвращает корзину или ErrBasketNotFound.
	Get(ctx context.Context, id string) (Basket, error)
	// Save сохраняет корзину, если её Version совпадает с сохранённой, и увеличивает Version.
	// При расхождении возвращает ErrBasketVersionConflict.
	Save(ctx context.Context, basket *Basket) error
}

// ProductRepository: доступ к каталогу товаров только на чтение.
type ProductRepository interface {
	// GetByID возвращает товар или ErrProductNotFound.
	GetByID(ctx context.Context, id int64) (Product, error)
}

// DeliveryMethodRepository: справочник способов доставки.
type DeliveryMethodRepository interface {
	// GetByID возвращает способ доставки или ErrDeliveryMethodNotFound.
	GetByID(ctx context.Context, id int64) (DeliveryMethod, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// FindByPaymentIntentID ищет заказ по идентификатору intent провайдера.
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// OrderTransitionStore сохраняет новый статус заказа вместе с записью timeline и
// событием outbox в одной транзакции. Ошибки версий те же, что у OrderRepository.Save.
// event и msg могут быть nil.
type OrderTransitionStore interface {
	SaveTransition(ctx context.Context, order Order, event *TimelineEvent, msg *OutboxMessage) error
}

// PaymentProvider описывает операции над payment intent у внешнего провайдера.
type PaymentProvider interface {
	// CreateIntent создаёт intent на указанную сумму.
	CreateIntent(ctx context.Context, req IntentRequest) (PaymentIntent, error)
	// UpdateIntent меняет только сумму существующего intent.
	UpdateIntent(ctx context.Context, id string, amountMinor int64) error
}

// WebhookVerifier проверяет подпись уведомления и разбирает его.
type WebhookVerifier interface {
	VerifyEvent(payload []byte, signature, secret string) (WebhookEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; повторная публикация того же ID допустима.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository хранит события до публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit сообщений pending в порядке постановки.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed переводит сообщение в failed и сохраняет причину.
	MarkFailed(ctx context.Context, id, reason string) error
}

// TimelineRepository хранит историю заказа.
type TimelineRepository interface {
	// Append добавляет запись; нулевое Occurred заменяется текущим временем.
	Append(ctx context.Context, event TimelineEvent) error
	// List возвращает записи заказа по возрастанию Occurred.
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// WebhookEventRepository: журнал обработанных уведомлений провайдера.
type WebhookEventRepository interface {
	// Claim записывает событие в статусе processing. Если событие уже обработано
	// и запись не истекла, возвращает её и claimed=false. Незавершённые и
	// упавшие записи захватываются повторно с увеличением Attempts.
	Claim(ctx context.Context, event WebhookEvent, expiresAt time.Time) (ProcessedWebhookEvent, bool, error)
	// Get возвращает запись или ErrWebhookEventNotFound.
	Get(ctx context.Context, eventID string) (ProcessedWebhookEvent, error)
	MarkHandled(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string) error
	// DeleteExpired удаляет не больше limit записей с ExpiresAt <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
