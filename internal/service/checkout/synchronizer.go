package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultCurrency        = "usd"
	defaultProviderTimeout = 10 * time.Second
)

// SyncConfig задаёт параметры создания intent. Передаётся при конструировании, глобального состояния нет.
type SyncConfig struct {
	Currency           string
	PaymentMethodTypes []string
	// ProviderTimeout ограничивает каждый вызов провайдера.
	ProviderTimeout time.Duration
}

// DefaultSyncConfig возвращает настройки по умолчанию: usd, карта, 10 секунд на вызов провайдера.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Currency:           defaultCurrency,
		PaymentMethodTypes: []string{"card"},
		ProviderTimeout:    defaultProviderTimeout,
	}
}

func (c SyncConfig) withDefaults() SyncConfig {
	def := DefaultSyncConfig()
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = def.Currency
	}
	c.Currency = strings.ToLower(c.Currency)
	if len(c.PaymentMethodTypes) == 0 {
		c.PaymentMethodTypes = def.PaymentMethodTypes
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = def.ProviderTimeout
	}
	return c
}

// IntentSynchronizer создаёт или обновляет payment intent корзины и сохраняет корзину.
type IntentSynchronizer struct {
	baskets    domain.BasketRepository
	reconciler *PriceReconciler
	delivery   domain.DeliveryMethodRepository
	provider   domain.PaymentProvider
	cfg        SyncConfig
	locks      *keyedMutex
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
}

// SyncOption настраивает IntentSynchronizer.
type SyncOption func(*IntentSynchronizer)

// WithSyncLogger задаёт логгер синхронизатора.
func WithSyncLogger(logger *log.Entry) SyncOption {
	return func(s *IntentSynchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncMetrics подключает метрики.
func WithSyncMetrics(m *metrics.CheckoutMetrics) SyncOption {
	return func(s *IntentSynchronizer) {
		s.metrics = m
	}
}

// NewIntentSynchronizer собирает синхронизатор из хранилищ и клиента провайдера.
func NewIntentSynchronizer(
	baskets domain.BasketRepository,
	products domain.ProductRepository,
	delivery domain.DeliveryMethodRepository,
	provider domain.PaymentProvider,
	cfg SyncConfig,
	opts ...SyncOption,
) *IntentSynchronizer {
	s := &IntentSynchronizer{
		baskets:  baskets,
		delivery: delivery,
		provider: provider,
		cfg:      cfg.withDefaults(),
		locks:    newKeyedMutex(),
		logger:   log.New().WithField("component", "checkout-sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = NewPriceReconciler(products, s.logger)
	return s
}

// Synchronize пересчитывает сумму корзины, создаёт intent (если его ещё нет) или обновляет
// его сумму, после чего сохраняет корзину. При ошибке провайдера корзина не сохраняется.
// Параллельные вызовы для одной корзины выполняются последовательно.
func (s *IntentSynchronizer) Synchronize(ctx context.Context, basketID string) (domain.Basket, error) {
	start := time.Now()
	defer func() { s.metrics.RecordSyncDuration(time.Since(start)) }()

	basketID = strings.TrimSpace(basketID)
	if basketID == "" {
		s.metrics.RecordSyncFailure(metrics.SyncFailureInvalid)
		return domain.Basket{}, domain.ErrBasketIDRequired
	}

	unlock, err := s.locks.Lock(ctx, basketID)
	if err != nil {
		s.metrics.RecordSyncFailure(metrics.SyncFailureCancelled)
		return domain.Basket{}, fmt.Errorf("wait for basket %s: %w", basketID, err)
	}
	defer unlock()

	logger := s.logger.WithField("basket_id", basketID)

	basket, err := s.sync(ctx, basketID, logger)
	if err != nil {
		reason := failureReason(err)
		s.metrics.RecordSyncFailure(reason)
		logger.WithError(err).WithField("reason", reason).Warn("payment intent synchronization failed")
		return domain.Basket{}, err
	}
	return basket, nil
}

func (s *IntentSynchronizer) sync(ctx context.Context, basketID string, logger *log.Entry) (domain.Basket, error) {
	basket, err := s.baskets.Get(ctx, basketID)
	if err != nil {
		return domain.Basket{}, fmt.Errorf("load basket: %w", err)
	}

	if errs := basket.Validate(); len(errs) > 0 {
		return domain.Basket{}, fmt.Errorf("invalid basket: %w", errors.Join(errs...))
	}

	corrected, err := s.reconciler.Reconcile(ctx, &basket)
	if err != nil {
		return domain.Basket{}, err
	}
	s.metrics.RecordPricesCorrected(corrected)

	delivery, err := s.resolveDelivery(ctx, basket)
	if err != nil {
		return domain.Basket{}, err
	}
	amount := ComputeTotal(basket, delivery)

	if basket.HasPaymentIntent() {
		if err := s.updateIntent(ctx, basket.PaymentIntentID, amount); err != nil {
			return domain.Basket{}, err
		}
		s.metrics.RecordIntentUpdated()
	} else {
		intent, err := s.createIntent(ctx, basket, amount)
		if err != nil {
			return domain.Basket{}, err
		}
		basket.PaymentIntentID = intent.ID
		basket.ClientSecret = intent.ClientSecret
		s.metrics.RecordIntentCreated()
	}

	basket.ShippingPrice = decimal.Zero
	if delivery != nil {
		basket.ShippingPrice = delivery.Price
	}

	if err := s.baskets.Save(ctx, &basket); err != nil {
		return domain.Basket{}, fmt.Errorf("save basket: %w", err)
	}

	logger.WithFields(log.Fields{
		"payment_intent_id": basket.PaymentIntentID,
		"amount_minor":      amount,
		"prices_corrected":  corrected,
		"version":           basket.Version,
	}).Info("payment intent synchronized")

	return basket, nil
}

func (s *IntentSynchronizer) resolveDelivery(ctx context.Context, basket domain.Basket) (*domain.DeliveryMethod, error) {
	if basket.DeliveryMethodID == nil {
		return nil, nil
	}
	dm, err := s.delivery.GetByID(ctx, *basket.DeliveryMethodID)
	if err != nil {
		return nil, fmt.Errorf("resolve delivery method %d: %w", *basket.DeliveryMethodID, err)
	}
	return &dm, nil
}

func (s *IntentSynchronizer) createIntent(ctx context.Context, basket domain.Basket, amount int64) (domain.PaymentIntent, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	intent, err := s.provider.CreateIntent(callCtx, domain.IntentRequest{
		AmountMinor:        amount,
		Currency:           s.cfg.Currency,
		PaymentMethodTypes: s.cfg.PaymentMethodTypes,
		IdempotencyKey:     createIdempotencyKey(basket.ID, amount),
		Metadata:           map[string]string{"basket_id": basket.ID},
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("%w: create intent: %w", domain.ErrPaymentProvider, err)
	}
	if intent.ID == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: create intent returned empty id", domain.ErrPaymentProvider)
	}
	return intent, nil
}

// createIdempotencyKey действует в пределах одного вызова Synchronize: повторы внутри
// SDK получают тот же intent, а корзина, пересозданная с тем же id, никогда не
// получит чужой intent с прежней суммой.
func createIdempotencyKey(basketID string, amount int64) string {
	return fmt.Sprintf("basket:%s:%d:%s", basketID, amount, uuid.NewString())
}

func (s *IntentSynchronizer) updateIntent(ctx context.Context, intentID string, amount int64) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	if err := s.provider.UpdateIntent(callCtx, intentID, amount); err != nil {
		return fmt.Errorf("%w: update intent %s: %w", domain.ErrPaymentProvider, intentID, err)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPaymentProvider):
		return metrics.SyncFailureProvider
	case domain.IsNotFound(err):
		return metrics.SyncFailureNotFound
	case domain.IsVersionConflict(err):
		return metrics.SyncFailureConflict
	case errors.Is(err, domain.ErrItemQtyInvalid), errors.Is(err, domain.ErrItemPriceInvalid), errors.Is(err, domain.ErrBasketIDRequired):
		return metrics.SyncFailureInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.SyncFailureCancelled
	default:
		return metrics.SyncFailureStorage
	}
}
