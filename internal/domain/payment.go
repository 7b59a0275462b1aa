package domain

// PaymentIntent: объект провайдера, на который ссылается корзина. Сервис им не владеет.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// IntentRequest: параметры создания payment intent.
type IntentRequest struct {
	AmountMinor        int64
	Currency           string
	PaymentMethodTypes []string
	// IdempotencyKey передаётся провайдеру, чтобы повтор создания в рамках одного вызова вернул тот же intent.
	IdempotencyKey string
	Metadata       map[string]string
}

// WebhookEventType: тип уведомления провайдера.
type WebhookEventType string

const (
	// WebhookEventPaymentSucceeded: оплата по intent прошла.
	WebhookEventPaymentSucceeded WebhookEventType = "payment_intent.succeeded"
	// WebhookEventPaymentFailed: оплата по intent отклонена.
	WebhookEventPaymentFailed WebhookEventType = "payment_intent.payment_failed"
)

// WebhookEvent: проверенное и разобранное уведомление провайдера.
type WebhookEvent struct {
	ID              string
	Type            WebhookEventType
	PaymentIntentID string
}
