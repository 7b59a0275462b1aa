package domain

import (
	"fmt"
	"time"
)

// OutboxStatus: состояние сообщения в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	// OutboxStatusFailed: публикация исчерпала попытки, сообщение ушло в DLQ.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMessage: событие, ожидающее публикации в брокер.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// Attempts и CreatedAt заполняет хранилище.
	Attempts  int
	CreatedAt time.Time
}

// Validate проверяет поля, без которых событие нельзя маршрутизировать.
func (m OutboxMessage) Validate() error {
	if m.EventType == "" || m.AggregateID == "" {
		return fmt.Errorf("%w: event type and aggregate id are required", ErrOutboxPublish)
	}
	return nil
}

// PartitionKey возвращает ключ сообщения в брокере: события одного агрегата идут в одну партицию.
func (m OutboxMessage) PartitionKey() string {
	if m.AggregateID != "" {
		return m.AggregateID
	}
	return m.ID
}

// OutboxStats описывает backlog outbox.
type OutboxStats struct {
	PendingCount    int
	FailedCount     int
	OldestPendingAt time.Time
}

// OldestPendingAge: возраст самого старого pending сообщения, ноль при пустом backlog.
func (s OutboxStats) OldestPendingAge(now time.Time) time.Duration {
	if s.PendingCount == 0 || s.OldestPendingAt.IsZero() {
		return 0
	}
	return max(now.Sub(s.OldestPendingAt), 0)
}
