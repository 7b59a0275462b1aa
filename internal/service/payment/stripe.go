package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultStripeTimeout = 30 * time.Second

// Config задаёт подключение к Stripe. Ключи передаются явно, глобальный stripe.Key не используется.
type Config struct {
	SecretKey string
	// APIURL переопределяет адрес API (stripe-mock, тестовый сервер).
	APIURL  string
	Timeout time.Duration
	// IgnoreAPIVersionMismatch разрешает события, подписанные под другой версией API аккаунта.
	IgnoreAPIVersionMismatch bool
}

// StripeClient реализует PaymentProvider и WebhookVerifier поверх stripe-go.
type StripeClient struct {
	api            *client.API
	ignoreMismatch bool
	logger         *log.Entry
}

// NewStripeClient создаёт клиента со своим набором backend'ов.
func NewStripeClient(cfg Config, logger *log.Entry) (*StripeClient, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if logger == nil {
		logger = log.New().WithField("component", "stripe")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStripeTimeout
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
		// Повторы выполняет вызывающий код с ключом идемпотентности.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger,
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	return &StripeClient{
		api:            client.New(cfg.SecretKey, backends),
		ignoreMismatch: cfg.IgnoreAPIVersionMismatch,
		logger:         logger,
	}, nil
}

// CreateIntent создаёт PaymentIntent. Ошибка Stripe (*stripe.Error) остаётся в цепочке.
func (c *StripeClient) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice(req.PaymentMethodTypes),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return domain.PaymentIntent{}, describeStripeError(err)
	}

	c.logger.WithFields(log.Fields{
		"payment_intent_id": pi.ID,
		"amount_minor":      pi.Amount,
	}).Debug("stripe payment intent created")

	return domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// UpdateIntent меняет сумму существующего PaymentIntent.
func (c *StripeClient) UpdateIntent(ctx context.Context, id string, amountMinor int64) error {
	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(amountMinor),
	}
	params.Context = ctx

	if _, err := c.api.PaymentIntents.Update(id, params); err != nil {
		return describeStripeError(err)
	}
	return nil
}

// VerifyEvent проверяет заголовок Stripe-Signature и извлекает идентификатор PaymentIntent.
func (c *StripeClient) VerifyEvent(payload []byte, signature, secret string) (domain.WebhookEvent, error) {
	return verifyStripeEvent(payload, signature, secret, c.ignoreMismatch)
}

// StripeVerifier проверяет подписи без доступа к API (ключ API не нужен).
type StripeVerifier struct {
	IgnoreAPIVersionMismatch bool
}

// VerifyEvent реализует domain.WebhookVerifier.
func (v StripeVerifier) VerifyEvent(payload []byte, signature, secret string) (domain.WebhookEvent, error) {
	return verifyStripeEvent(payload, signature, secret, v.IgnoreAPIVersionMismatch)
}

func verifyStripeEvent(payload []byte, signature, secret string, ignoreMismatch bool) (domain.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: ignoreMismatch,
	})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %w", domain.ErrWebhookVerification, err)
	}

	result := domain.WebhookEvent{
		ID:   event.ID,
		Type: domain.WebhookEventType(event.Type),
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") || event.Data == nil {
		return result, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %w", domain.ErrWebhookVerification, err)
	}
	result.PaymentIntentID = pi.ID
	return result, nil
}

func describeStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s (status %d, code %s): %w", stripeErr.Type, stripeErr.HTTPStatusCode, stripeErr.Code, err)
	}
	return err
}

var (
	_ domain.PaymentProvider = (*StripeClient)(nil)
	_ domain.WebhookVerifier = (*StripeClient)(nil)
	_ domain.WebhookVerifier = StripeVerifier{}
)
