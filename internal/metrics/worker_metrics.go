package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics описывает фоновые воркеры: публикацию outbox и очистку журнала webhook-событий.
// Методы безопасны для nil-получателя.
type WorkerMetrics struct {
	outboxPublishAttempts  *prometheus.CounterVec
	outboxPendingRecords   prometheus.Gauge
	outboxOldestPendingAge prometheus.Gauge

	cleanupRuns        *prometheus.CounterVec
	cleanupDeleted     prometheus.Counter
	cleanupLastDeleted prometheus.Gauge
}

// NewWorkerMetrics регистрирует метрики в default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegisterer регистрирует метрики в переданном registry.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		outboxPendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		outboxOldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_dedup_cleanup_runs_total",
			Help: "Total number of webhook dedup cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_webhook_dedup_cleanup_deleted_total",
			Help: "Total number of deleted expired webhook dedup records.",
		}),
		cleanupLastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_webhook_dedup_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOutboxPublish учитывает попытку публикации (sent, retry_error, failed, dlq_failed).
func (m *WorkerMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер и возраст backlog.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPendingRecords.Set(float64(pending))
	m.outboxOldestPendingAge.Set(oldestAge.Seconds())
}

// RecordCleanupRun учитывает прогон очистки; deleted учитывается только для result=ok.
func (m *WorkerMetrics) RecordCleanupRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.cleanupLastDeleted.Set(float64(deleted))
	}
}

// RecordCleanupDeleted увеличивает общий счётчик удалённых записей.
func (m *WorkerMetrics) RecordCleanupDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}
