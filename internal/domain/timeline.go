package domain

import (
	"errors"
	"time"
)

// TimelineEventType: вид записи в истории заказа.
type TimelineEventType string

const (
	TimelineEventPaymentReceived TimelineEventType = "payment_received"
	TimelineEventPaymentFailed   TimelineEventType = "payment_failed"
	// TimelineEventTransitionSkipped фиксирует уведомление, которое не изменило статус.
	TimelineEventTransitionSkipped TimelineEventType = "transition_skipped"
)

// TimelineEventForStatus возвращает тип записи для успешного перехода в status.
func TimelineEventForStatus(status OrderStatus) (TimelineEventType, bool) {
	switch status {
	case OrderStatusPaymentReceived:
		return TimelineEventPaymentReceived, true
	case OrderStatusPaymentFailed:
		return TimelineEventPaymentFailed, true
	default:
		return "", false
	}
}

// TimelineEvent: запись истории заказа. Для пропущенного перехода ToStatus
// содержит запрошенный статус, а заказ остаётся в FromStatus.
type TimelineEvent struct {
	OrderID    string
	Type       TimelineEventType
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Reason     string
	Occurred   time.Time
}

// Validate проверяет обязательные поля.
func (e TimelineEvent) Validate() error {
	if e.OrderID == "" || e.Type == "" {
		return errors.New("timeline event requires order id and type")
	}
	return nil
}
