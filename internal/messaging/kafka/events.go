package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeOrderPaymentReceived: заказ переведён в payment_received.
	EventTypeOrderPaymentReceived EventType = "order.payment_received"
	// EventTypeOrderPaymentFailed: заказ переведён в payment_failed.
	EventTypeOrderPaymentFailed EventType = "order.payment_failed"
)

// Topics для Kafka
const (
	TopicOrderEvents          = "checkout.order.events"
	TopicPaymentNotifications = "checkout.payment.notifications"
	TopicDeadLetterQueue      = "checkout.dlq"
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderMessageID     = "x-message-id"
)

// OrderEventTypeForStatus возвращает тип события для целевого статуса заказа.
func OrderEventTypeForStatus(status domain.OrderStatus) (EventType, bool) {
	switch status {
	case domain.OrderStatusPaymentReceived:
		return EventTypeOrderPaymentReceived, true
	case domain.OrderStatusPaymentFailed:
		return EventTypeOrderPaymentFailed, true
	default:
		return "", false
	}
}

// OrderPaymentEvent публикуется после смены статуса оплаты заказа.
type OrderPaymentEvent struct {
	EventType       EventType `json:"event_type"`
	OrderID         string    `json:"order_id"`
	BuyerEmail      string    `json:"buyer_email,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewOrderPaymentEvent создаёт событие по сохранённому заказу.
func NewOrderPaymentEvent(eventType EventType, order domain.Order, previous domain.OrderStatus) *OrderPaymentEvent {
	return &OrderPaymentEvent{
		EventType:       eventType,
		OrderID:         order.ID,
		BuyerEmail:      order.BuyerEmail,
		PaymentIntentID: order.PaymentIntentID,
		Status:          string(order.Status),
		PreviousStatus:  string(previous),
		AmountMinor:     order.AmountMinor,
		Currency:        order.Currency,
		Timestamp:       order.UpdatedAt,
	}
}

// PaymentNotification: уведомление провайдера, которое отдельный webhook-ingress
// переложил в Kafka. Payload и Signature копируются из HTTP-запроса провайдера
// без изменений: подпись проверяется здесь так же, как у прямого webhook.
type PaymentNotification struct {
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`
}

// Validate отклоняет уведомление без тела или без подписи.
func (n PaymentNotification) Validate() error {
	if len(n.Payload) == 0 {
		return errors.New("payment notification has no payload")
	}
	if strings.TrimSpace(n.Signature) == "" {
		return fmt.Errorf("%w: payment notification is not signed", domain.ErrWebhookVerification)
	}
	return nil
}
