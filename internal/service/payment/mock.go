package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockProvider: конфигурируемая заглушка провайдера для dev-режима и тестов.
// Повторный CreateIntent с тем же ключом идемпотентности возвращает тот же intent, как у Stripe,
// а тот же ключ с другой суммой отклоняется.
type MockProvider struct {
	mu sync.Mutex

	CreateErr error
	UpdateErr error

	CreateCalls int
	UpdateCalls int

	intents   map[string]domain.PaymentIntent
	byIdemKey map[string]idempotentCreate
}

type idempotentCreate struct {
	intentID    string
	amountMinor int64
}

// NewMockProvider возвращает mock с успешным сценарием по умолчанию.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		intents:   make(map[string]domain.PaymentIntent),
		byIdemKey: make(map[string]idempotentCreate),
	}
}

// CreateIntent создаёт intent с идентификатором pi_mock_<uuid>.
func (m *MockProvider) CreateIntent(_ context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.PaymentIntent{}, m.CreateErr
	}
	if prev, ok := m.byIdemKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		if prev.amountMinor != req.AmountMinor {
			return domain.PaymentIntent{}, fmt.Errorf("idempotency key %s reused with different parameters", req.IdempotencyKey)
		}
		return m.intents[prev.intentID], nil
	}

	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := domain.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
	}
	m.intents[id] = intent
	if req.IdempotencyKey != "" {
		m.byIdemKey[req.IdempotencyKey] = idempotentCreate{intentID: id, amountMinor: req.AmountMinor}
	}
	return intent, nil
}

// UpdateIntent меняет сумму ранее созданного intent.
func (m *MockProvider) UpdateIntent(_ context.Context, id string, amountMinor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	intent, ok := m.intents[id]
	if !ok {
		return fmt.Errorf("no such payment_intent: %s", id)
	}
	intent.AmountMinor = amountMinor
	m.intents[id] = intent
	return nil
}

// Intent возвращает сохранённое состояние intent.
func (m *MockProvider) Intent(id string) (domain.PaymentIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	return intent, ok
}

// MockVerifier принимает события, у которых подпись совпадает с секретом.
// Тело разбирается как {"id","type","payment_intent_id"}.
type MockVerifier struct{}

type mockEvent struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// VerifyEvent реализует domain.WebhookVerifier.
func (MockVerifier) VerifyEvent(payload []byte, signature, secret string) (domain.WebhookEvent, error) {
	if secret == "" || signature != secret {
		return domain.WebhookEvent{}, domain.ErrWebhookVerification
	}
	var ev mockEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %w", domain.ErrWebhookVerification, err)
	}
	return domain.WebhookEvent{
		ID:              ev.ID,
		Type:            domain.WebhookEventType(ev.Type),
		PaymentIntentID: ev.PaymentIntentID,
	}, nil
}

var (
	_ domain.PaymentProvider = (*MockProvider)(nil)
	_ domain.WebhookVerifier = MockVerifier{}
)
