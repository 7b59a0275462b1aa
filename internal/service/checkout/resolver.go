package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	saveMaxAttempts = 3
	saveBaseDelay   = 10 * time.Millisecond
)

// OrderStatusResolver переводит заказ в статус по результату оплаты его payment intent.
type OrderStatusResolver struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	// transitions, если задан, пишет заказ, timeline и outbox одной транзакцией.
	transitions domain.OrderTransitionStore
	logger      *log.Entry
	metrics     *metrics.CheckoutMetrics
	now         func() time.Time
}

// ResolverOption настраивает OrderStatusResolver.
type ResolverOption func(*OrderStatusResolver)

// WithResolverLogger задаёт логгер.
func WithResolverLogger(logger *log.Entry) ResolverOption {
	return func(r *OrderStatusResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverMetrics подключает метрики.
func WithResolverMetrics(m *metrics.CheckoutMetrics) ResolverOption {
	return func(r *OrderStatusResolver) {
		r.metrics = m
	}
}

// WithTransitionStore включает транзакционную запись перехода вместо трёх отдельных записей.
func WithTransitionStore(store domain.OrderTransitionStore) ResolverOption {
	return func(r *OrderStatusResolver) {
		r.transitions = store
	}
}

// NewOrderStatusResolver создаёт резолвер. timeline и outbox могут быть nil.
func NewOrderStatusResolver(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	opts ...ResolverOption,
) *OrderStatusResolver {
	r := &OrderStatusResolver{
		orders:   orders,
		timeline: timeline,
		outbox:   outbox,
		logger:   log.New().WithField("component", "order-status-resolver"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarkSucceeded переводит заказ с данным intent в payment_received.
func (r *OrderStatusResolver) MarkSucceeded(ctx context.Context, paymentIntentID string) (domain.Order, error) {
	return r.apply(ctx, paymentIntentID, domain.OrderStatusPaymentReceived)
}

// MarkFailed переводит заказ с данным intent в payment_failed.
func (r *OrderStatusResolver) MarkFailed(ctx context.Context, paymentIntentID string) (domain.Order, error) {
	return r.apply(ctx, paymentIntentID, domain.OrderStatusPaymentFailed)
}

// apply возвращает заказ после применения статуса. Если переход запрещён
// (например, payment_failed после payment_received), заказ не меняется и ошибки нет.
func (r *OrderStatusResolver) apply(ctx context.Context, paymentIntentID string, target domain.OrderStatus) (domain.Order, error) {
	logger := r.logger.WithFields(log.Fields{
		"payment_intent_id": paymentIntentID,
		"target_status":     target,
	})

	for attempt := 0; attempt < saveMaxAttempts; attempt++ {
		order, err := r.orders.FindByPaymentIntentID(ctx, paymentIntentID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("find order by payment intent %s: %w", paymentIntentID, err)
		}

		if order.Status == target {
			return order, nil
		}
		if !order.Status.CanTransitionTo(target) {
			r.skip(ctx, order, target, logger)
			return order, nil
		}

		previous := order.Status
		order.Status = target
		order.UpdatedAt = r.now()

		if r.transitions != nil {
			err = r.saveTransition(ctx, order, previous)
		} else {
			err = r.orders.Save(ctx, order)
		}
		if err == nil {
			order.Version++
			r.metrics.RecordOrderTransition(string(target))
			logger.WithFields(log.Fields{
				"order_id":        order.ID,
				"previous_status": previous,
			}).Info("order status updated")
			if r.transitions == nil {
				r.emit(ctx, order, previous, logger)
			}
			return order, nil
		}

		if !domain.IsVersionConflict(err) || attempt == saveMaxAttempts-1 {
			return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
		}

		logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		delay := saveBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		}
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

func (r *OrderStatusResolver) skip(ctx context.Context, order domain.Order, target domain.OrderStatus, logger *log.Entry) {
	r.metrics.RecordTransitionSkipped()
	logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"current_status": order.Status,
	}).Info("status transition skipped")

	r.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:    order.ID,
		Type:       domain.TimelineEventTransitionSkipped,
		FromStatus: order.Status,
		ToStatus:   target,
		Reason:     "transition not allowed",
		Occurred:   r.now(),
	}, logger)
}

// saveTransition сохраняет заказ вместе с его событиями через transitions.
func (r *OrderStatusResolver) saveTransition(ctx context.Context, order domain.Order, previous domain.OrderStatus) error {
	msg, err := r.outboxMessage(order, previous)
	if err != nil {
		return err
	}
	var event *domain.TimelineEvent
	if ev, ok := transitionEvent(order, previous); ok {
		event = &ev
	}

	if err := r.transitions.SaveTransition(ctx, order, event, msg); err != nil {
		return err
	}
	if event != nil {
		r.metrics.RecordTimelineEvent()
	}
	if msg != nil {
		r.metrics.RecordOutboxEvent()
	}
	return nil
}

// emit пишет событие в timeline и outbox отдельными записями. Сбой здесь не
// откатывает уже сохранённый статус.
func (r *OrderStatusResolver) emit(ctx context.Context, order domain.Order, previous domain.OrderStatus, logger *log.Entry) {
	if ev, ok := transitionEvent(order, previous); ok {
		r.appendTimeline(ctx, ev, logger)
	}

	if r.outbox == nil {
		return
	}
	msg, err := r.outboxMessage(order, previous)
	if err != nil {
		logger.WithError(err).Error("build outbox event failed")
		return
	}
	if msg == nil {
		return
	}
	if _, err := r.outbox.Enqueue(ctx, *msg); err != nil {
		logger.WithError(err).WithField("event", msg.EventType).Error("enqueue event failed")
		return
	}
	r.metrics.RecordOutboxEvent()
}

func transitionEvent(order domain.Order, previous domain.OrderStatus) (domain.TimelineEvent, bool) {
	timelineType, ok := domain.TimelineEventForStatus(order.Status)
	if !ok {
		return domain.TimelineEvent{}, false
	}
	return domain.TimelineEvent{
		OrderID:    order.ID,
		Type:       timelineType,
		FromStatus: previous,
		ToStatus:   order.Status,
		Occurred:   order.UpdatedAt,
	}, true
}

// outboxMessage возвращает nil, если для статуса нет события.
func (r *OrderStatusResolver) outboxMessage(order domain.Order, previous domain.OrderStatus) (*domain.OutboxMessage, error) {
	eventType, ok := kafka.OrderEventTypeForStatus(order.Status)
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(kafka.NewOrderPaymentEvent(eventType, order, previous))
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       data,
	}, nil
}

func (r *OrderStatusResolver) appendTimeline(ctx context.Context, event domain.TimelineEvent, logger *log.Entry) {
	if r.timeline == nil {
		return
	}
	if err := r.timeline.Append(ctx, event); err != nil {
		logger.WithError(err).WithField("event", event.Type).Warn("append timeline event failed")
		return
	}
	r.metrics.RecordTimelineEvent()
}
