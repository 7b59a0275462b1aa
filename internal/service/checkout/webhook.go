package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const defaultDedupTTL = 72 * time.Hour

// WebhookConfig задаёт секрет подписи и срок хранения записей журнала событий.
type WebhookConfig struct {
	SigningSecret string
	DedupTTL      time.Duration
}

// WebhookDispatcher проверяет уведомления провайдера и передаёт их в OrderStatusResolver.
type WebhookDispatcher struct {
	verifier domain.WebhookVerifier
	resolver *OrderStatusResolver
	journal  domain.WebhookEventRepository
	cfg      WebhookConfig
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

// WebhookOption настраивает WebhookDispatcher.
type WebhookOption func(*WebhookDispatcher)

// WithWebhookLogger задаёт логгер.
func WithWebhookLogger(logger *log.Entry) WebhookOption {
	return func(d *WebhookDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithWebhookMetrics подключает метрики.
func WithWebhookMetrics(m *metrics.CheckoutMetrics) WebhookOption {
	return func(d *WebhookDispatcher) {
		d.metrics = m
	}
}

// NewWebhookDispatcher создаёт диспетчер. journal может быть nil, тогда повторы не отсекаются
// и полагаются только на идемпотентность смены статуса.
func NewWebhookDispatcher(
	verifier domain.WebhookVerifier,
	resolver *OrderStatusResolver,
	journal domain.WebhookEventRepository,
	cfg WebhookConfig,
	opts ...WebhookOption,
) *WebhookDispatcher {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	d := &WebhookDispatcher{
		verifier: verifier,
		resolver: resolver,
		journal:  journal,
		cfg:      cfg,
		logger:   log.New().WithField("component", "webhook"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleWebhook проверяет подпись и обрабатывает событие. Ошибка проверки
// оборачивает domain.ErrWebhookVerification, остальные ошибки относятся к хранилищу.
func (d *WebhookDispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if d.cfg.SigningSecret == "" {
		d.metrics.RecordWebhookEvent("", metrics.WebhookResultRejected)
		return fmt.Errorf("%w: signing secret is not configured", domain.ErrWebhookVerification)
	}

	event, err := d.verifier.VerifyEvent(payload, signature, d.cfg.SigningSecret)
	if err != nil {
		d.metrics.RecordWebhookEvent("", metrics.WebhookResultRejected)
		d.logger.WithError(err).Warn("webhook rejected")
		if errors.Is(err, domain.ErrWebhookVerification) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrWebhookVerification, err)
	}

	return d.Dispatch(ctx, event)
}

// Dispatch применяет уже проверенное событие. Неизвестные типы и события
// для неизвестных intent подтверждаются без изменений.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event domain.WebhookEvent) error {
	logger := d.logger.WithFields(log.Fields{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"payment_intent_id": event.PaymentIntentID,
	})

	var apply func(context.Context, string) (domain.Order, error)
	switch event.Type {
	case domain.WebhookEventPaymentSucceeded:
		apply = d.resolver.MarkSucceeded
	case domain.WebhookEventPaymentFailed:
		apply = d.resolver.MarkFailed
	default:
		d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultIgnored)
		logger.Debug("webhook event ignored")
		return nil
	}

	tracked := d.journal != nil && event.ID != ""
	if tracked {
		claimed, err := d.claim(ctx, event, logger)
		if err != nil {
			d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultError)
			return err
		}
		if !claimed {
			d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultDuplicate)
			logger.Info("duplicate webhook event skipped")
			return nil
		}
	}

	order, err := apply(ctx, event.PaymentIntentID)
	switch {
	case err == nil:
		d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultHandled)
		logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Info("webhook event handled")
		d.finish(ctx, tracked, event.ID, true, logger)
		return nil
	case errors.Is(err, domain.ErrOrderNotFound):
		d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultNotFound)
		logger.Info("no order for payment intent")
		d.finish(ctx, tracked, event.ID, true, logger)
		return nil
	default:
		d.metrics.RecordWebhookEvent(string(event.Type), metrics.WebhookResultError)
		logger.WithError(err).Error("webhook event processing failed")
		d.finish(ctx, tracked, event.ID, false, logger)
		return err
	}
}

// claim записывает событие в журнал. Возвращает false, если событие уже обработано.
func (d *WebhookDispatcher) claim(ctx context.Context, event domain.WebhookEvent, logger *log.Entry) (bool, error) {
	entry, claimed, err := d.journal.Claim(ctx, event, d.now().Add(d.cfg.DedupTTL))
	if err != nil {
		return false, fmt.Errorf("claim webhook event %s: %w", event.ID, err)
	}
	if !entry.Matches(event) {
		logger.WithFields(log.Fields{
			"journal_event_type":        entry.EventType,
			"journal_payment_intent_id": entry.PaymentIntentID,
		}).Warn("webhook event id reused with different payload")
	}
	if claimed && entry.Attempts > 1 {
		logger.WithField("attempts", entry.Attempts).Info("webhook event redelivered after unfinished attempt")
	}
	return claimed, nil
}

// finish фиксирует исход обработки. Ошибка журнала не влияет на ответ провайдеру.
func (d *WebhookDispatcher) finish(ctx context.Context, tracked bool, eventID string, handled bool, logger *log.Entry) {
	if !tracked {
		return
	}
	mark := d.journal.MarkFailed
	if handled {
		mark = d.journal.MarkHandled
	}
	if err := mark(ctx, eventID); err != nil {
		logger.WithError(err).Warn("update webhook journal failed")
	}
}
