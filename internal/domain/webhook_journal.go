package domain

import "time"

// WebhookEventStatus: состояние обработки уведомления провайдера в журнале.
type WebhookEventStatus string

const (
	// WebhookEventProcessing: событие захвачено обработчиком.
	WebhookEventProcessing WebhookEventStatus = "processing"
	// WebhookEventHandled: событие применено, повторная доставка пропускается.
	WebhookEventHandled WebhookEventStatus = "handled"
	// WebhookEventFailed: обработка упала, повторная доставка обрабатывается заново.
	WebhookEventFailed WebhookEventStatus = "failed"
)

// Valid сообщает, что статус известен.
func (s WebhookEventStatus) Valid() bool {
	switch s {
	case WebhookEventProcessing, WebhookEventHandled, WebhookEventFailed:
		return true
	default:
		return false
	}
}

// ProcessedWebhookEvent: запись журнала дедупликации webhook.
// Ключом служит идентификатор события у провайдера.
type ProcessedWebhookEvent struct {
	EventID         string
	EventType       WebhookEventType
	PaymentIntentID string
	Status          WebhookEventStatus
	// Attempts считает захваты события, включая первый.
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired сообщает, что запись можно удалить или захватить заново.
func (e ProcessedWebhookEvent) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Retryable сообщает, что повторная доставка должна дойти до обработчика.
func (e ProcessedWebhookEvent) Retryable(now time.Time) bool {
	return e.Status != WebhookEventHandled || e.Expired(now)
}

// Matches проверяет, что под тем же идентификатором пришло то же самое событие.
func (e ProcessedWebhookEvent) Matches(event WebhookEvent) bool {
	return e.EventType == event.Type && e.PaymentIntentID == event.PaymentIntentID
}

// NewProcessedWebhookEvent строит свежую запись в статусе processing.
func NewProcessedWebhookEvent(event WebhookEvent, now, expiresAt time.Time) ProcessedWebhookEvent {
	return ProcessedWebhookEvent{
		EventID:         event.ID,
		EventType:       event.Type,
		PaymentIntentID: event.PaymentIntentID,
		Status:          WebhookEventProcessing,
		Attempts:        1,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
