package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	lastError string
}

// OutboxRepository: outbox в памяти. Сообщения хранятся в порядке постановки.
type OutboxRepository struct {
	mu      sync.Mutex
	entries []*outboxEntry
	byID    map[string]*outboxEntry
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := msg.Validate(); err != nil {
		return domain.OutboxMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := r.byID[msg.ID]; exists {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already exists", msg.ID)
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	msg.Attempts = 0
	msg.CreatedAt = r.now()

	entry := &outboxEntry{msg: msg, status: domain.OutboxStatusPending}
	r.entries = append(r.entries, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	pending := r.AllPending()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, e := range r.entries {
		switch e.status {
		case domain.OutboxStatusPending:
			if stats.PendingCount == 0 {
				stats.OldestPendingAt = e.msg.CreatedAt
			}
			stats.PendingCount++
		case domain.OutboxStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.finish(id, domain.OutboxStatusSent, "")
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id, reason string) error {
	return r.finish(id, domain.OutboxStatusFailed, reason)
}

// AllPending возвращает копию pending сообщений в порядке постановки.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []domain.OutboxMessage
	for _, e := range r.entries {
		if e.status == domain.OutboxStatusPending {
			pending = append(pending, e.msg)
		}
	}
	return pending
}

// LastError возвращает причину, сохранённую MarkFailed.
func (r *OutboxRepository) LastError(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID[id]; ok {
		return e.lastError
	}
	return ""
}

func (r *OutboxRepository) finish(id string, status domain.OutboxStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok || e.status != domain.OutboxStatusPending {
		return fmt.Errorf("%w: pending message %s not found", domain.ErrOutboxPublish, id)
	}
	e.status = status
	e.lastError = reason
	e.msg.Attempts++
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
