package domain

import "time"

// OrderStatus описывает состояние заказа с точки зрения оплаты.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaymentReceived: провайдер подтвердил списание.
	OrderStatusPaymentReceived OrderStatus = "payment_received"
	// OrderStatusPaymentFailed: провайдер сообщил о неуспешной оплате.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaymentReceived, OrderStatusPaymentFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo сообщает, допустим ли переход из s в next.
//
// Повторное применение того же статуса переходом не считается. PaymentReceived
// конечен: запоздавшее уведомление об ошибке не откатывает подтверждённую оплату.
// PaymentFailed -> PaymentReceived разрешён, так как покупатель может повторить
// оплату тем же intent.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next || !next.Valid() {
		return false
	}
	switch s {
	case OrderStatusPaymentReceived:
		return false
	case OrderStatusPaymentFailed:
		return next == OrderStatusPaymentReceived
	default:
		return next == OrderStatusPaymentReceived || next == OrderStatusPaymentFailed
	}
}

// Order: заказ, привязанный к payment intent провайдера.
type Order struct {
	ID              string
	BuyerEmail      string
	Status          OrderStatus
	PaymentIntentID string
	Currency        string
	AmountMinor     int64
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
