// Package dedup обслуживает журнал webhook-событий: удаляет записи,
// срок хранения которых истёк.
package dedup

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 500
)

// Sweeper удаляет порцию истёкших записей журнала.
type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Janitor периодически чистит журнал порциями.
type Janitor struct {
	sweeper   Sweeper
	interval  time.Duration
	batchSize int
	logger    *log.Entry
	metrics   *metrics.WorkerMetrics
	now       func() time.Time
}

// Option настраивает Janitor.
type Option func(*Janitor)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithMetrics подключает метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJanitor создаёт воркер очистки. Неположительные interval и batchSize
// заменяются значениями по умолчанию.
func NewJanitor(sweeper Sweeper, interval time.Duration, batchSize int, opts ...Option) *Janitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	j := &Janitor{
		sweeper:   sweeper,
		interval:  interval,
		batchSize: batchSize,
		logger:    log.WithField("component", "webhook-journal-janitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run чистит журнал сразу и затем раз в interval, пока не отменён ctx.
func (j *Janitor) Run(ctx context.Context) {
	if j.sweeper == nil {
		j.logger.Warn("webhook journal janitor is disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	deleted, err := j.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		j.metrics.RecordCleanupRun("error", deleted)
		j.logger.WithError(err).WithField("deleted", deleted).Warn("webhook journal cleanup failed")
	default:
		j.metrics.RecordCleanupRun("ok", deleted)
		if deleted > 0 {
			j.logger.WithField("deleted", deleted).Info("expired webhook events removed")
		}
	}
}

// Sweep удаляет все записи, истёкшие к текущему моменту. Порции запрашиваются,
// пока хранилище возвращает полный batch.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	before := j.now()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := j.sweeper.DeleteExpired(ctx, before, j.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		j.metrics.RecordCleanupDeleted(n)
		if n < j.batchSize {
			return total, nil
		}
	}
}
