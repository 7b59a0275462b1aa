// Package outbox доставляет события заказов из outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
)

// Значения label result в checkout_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultDLQFailed  = "dlq_failed"
)

// Worker периодически забирает pending сообщения и публикует их.
// Сообщение, не доставленное за maxAttempts попыток, уходит в DLQ и помечается failed.
type Worker struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	logger     *log.Entry
	metrics    *metrics.WorkerMetrics
	now        func() time.Time

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics подключает метрики backlog и попыток публикации.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithDLQPublisher задаёт publisher для недоставленных сообщений.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.deadLetter = publisher
	}
}

// WithPollInterval задаёт период опроса.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер порции.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками. Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		w.retryDelay = max(delay, 0)
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		now:          func() time.Time { return time.Now().UTC() },
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну порцию и возвращает число доставленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox messages failed")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.handle(ctx, msg) {
			sent++
		}
	}
	if sent > 0 {
		w.logger.WithField("sent", sent).Debug("outbox batch published")
	}
	return sent
}

// handle доставляет одно сообщение и фиксирует результат в outbox.
func (w *Worker) handle(ctx context.Context, msg domain.OutboxMessage) bool {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
	})

	publishErr := w.deliver(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("mark outbox message sent failed")
			return false
		}
		return true
	}
	if ctx.Err() != nil {
		// Остановка: сообщение остаётся pending до следующего запуска.
		return false
	}

	logger.WithError(publishErr).Error("outbox message undeliverable")
	w.metrics.RecordOutboxPublish(resultFailed)
	if err := w.sendDeadLetter(ctx, msg, publishErr); err != nil {
		logger.WithError(err).Warn("publish to dlq failed")
		w.metrics.RecordOutboxPublish(resultDLQFailed)
	}
	if err := w.repo.MarkFailed(ctx, msg.ID, publishErr.Error()); err != nil {
		logger.WithError(err).Warn("mark outbox message failed")
	}
	return false
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			w.metrics.RecordOutboxPublish(resultSent)
			return nil
		}
		w.metrics.RecordOutboxPublish(resultRetryError)
		if attempt == w.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, err)
}

// backoff удваивает паузу после каждой попытки, не превышая maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.retryDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("collect outbox stats failed")
		return
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, stats.OldestPendingAge(w.now()))
}

// deadLetterRecord: содержимое сообщения в DLQ для недоставленного события outbox.
type deadLetterRecord struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) sendDeadLetter(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	if w.deadLetter == nil {
		return nil
	}

	record := deadLetterRecord{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		PublishError:   cause.Error(),
		DLQPublishedAt: w.now(),
	}
	if json.Valid(msg.Payload) {
		record.Payload = msg.Payload
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.deadLetter.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}
