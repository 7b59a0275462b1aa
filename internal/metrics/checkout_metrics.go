package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неуспешной синхронизации intent (label reason).
const (
	SyncFailureNotFound  = "not_found"
	SyncFailureInvalid   = "invalid_basket"
	SyncFailureProvider  = "provider"
	SyncFailureConflict  = "conflict"
	SyncFailureStorage   = "storage"
	SyncFailureCancelled = "cancelled"
)

// Результаты обработки webhook (label result).
const (
	WebhookResultHandled   = "handled"
	WebhookResultIgnored   = "ignored"
	WebhookResultDuplicate = "duplicate"
	WebhookResultNotFound  = "order_not_found"
	WebhookResultRejected  = "rejected"
	WebhookResultError     = "error"
)

// CheckoutMetrics содержит метрики синхронизации payment intent и обработки webhook.
// Все методы безопасны для nil-получателя, поэтому метрики можно не передавать в тестах.
type CheckoutMetrics struct {
	intentsCreated  prometheus.Counter
	intentsUpdated  prometheus.Counter
	pricesCorrected prometheus.Counter
	syncFailures    *prometheus.CounterVec
	syncDuration    prometheus.Histogram

	webhookEvents      *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	transitionsSkipped prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics регистрирует метрики в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer (изолированный реестр в тестах).
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		intentsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payment_intents_created_total",
			Help: "Total number of payment intents created at the provider",
		}),
		intentsUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payment_intents_updated_total",
			Help: "Total number of payment intent amount updates sent to the provider",
		}),
		pricesCorrected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_basket_prices_corrected_total",
			Help: "Total number of basket lines whose price was replaced with the catalog price",
		}),
		syncFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_intent_sync_failures_total",
			Help: "Total number of failed payment intent synchronizations by reason",
		}, []string{"reason"}),
		syncDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_intent_sync_duration_seconds",
			Help:    "Duration of payment intent synchronization in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_events_total",
			Help: "Total number of provider webhook events by type and result",
		}, []string{"type", "result"}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_order_status_transitions_total",
			Help: "Total number of order status transitions applied by target status",
		}, []string{"status"}),
		transitionsSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_order_status_transitions_skipped_total",
			Help: "Total number of notifications that did not change order status",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of order events enqueued to the outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordIntentCreated увеличивает счётчик созданных intent.
func (m *CheckoutMetrics) RecordIntentCreated() {
	if m == nil {
		return
	}
	m.intentsCreated.Inc()
}

// RecordIntentUpdated увеличивает счётчик обновлённых intent.
func (m *CheckoutMetrics) RecordIntentUpdated() {
	if m == nil {
		return
	}
	m.intentsUpdated.Inc()
}

// RecordPricesCorrected учитывает количество исправленных позиций корзины.
func (m *CheckoutMetrics) RecordPricesCorrected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pricesCorrected.Add(float64(n))
}

// RecordSyncFailure увеличивает счётчик ошибок синхронизации с причиной reason.
func (m *CheckoutMetrics) RecordSyncFailure(reason string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(reason).Inc()
}

// RecordSyncDuration записывает время синхронизации.
func (m *CheckoutMetrics) RecordSyncDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

// RecordWebhookEvent учитывает обработанное уведомление провайдера.
func (m *CheckoutMetrics) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordOrderTransition учитывает применённый переход статуса заказа.
func (m *CheckoutMetrics) RecordOrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

// RecordTransitionSkipped учитывает уведомление, не изменившее статус.
func (m *CheckoutMetrics) RecordTransitionSkipped() {
	if m == nil {
		return
	}
	m.transitionsSkipped.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
