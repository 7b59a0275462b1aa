package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// webhookEventRepositoryInMemory: журнал webhook-событий для режима без базы.
type webhookEventRepositoryInMemory struct {
	mu     sync.Mutex
	events map[string]domain.ProcessedWebhookEvent
	now    func() time.Time
}

// NewWebhookEventRepository создаёт in-memory журнал дедупликации webhook.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{
		events: make(map[string]domain.ProcessedWebhookEvent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *webhookEventRepositoryInMemory) Claim(
	_ context.Context,
	event domain.WebhookEvent,
	expiresAt time.Time,
) (domain.ProcessedWebhookEvent, bool, error) {
	if event.ID == "" {
		return domain.ProcessedWebhookEvent{}, false, domain.ErrWebhookEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	existing, ok := r.events[event.ID]
	switch {
	case !ok || existing.Expired(now):
		entry := domain.NewProcessedWebhookEvent(event, now, expiresAt)
		r.events[event.ID] = entry
		return entry, true, nil
	case !existing.Retryable(now):
		return existing, false, nil
	}

	existing.Status = domain.WebhookEventProcessing
	existing.Attempts++
	existing.ExpiresAt = expiresAt
	existing.UpdatedAt = now
	r.events[event.ID] = existing
	return existing, true, nil
}

func (r *webhookEventRepositoryInMemory) Get(_ context.Context, eventID string) (domain.ProcessedWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.events[eventID]
	if !ok {
		return domain.ProcessedWebhookEvent{}, domain.ErrWebhookEventNotFound
	}
	return entry, nil
}

func (r *webhookEventRepositoryInMemory) MarkHandled(_ context.Context, eventID string) error {
	return r.setStatus(eventID, domain.WebhookEventHandled)
}

func (r *webhookEventRepositoryInMemory) MarkFailed(_ context.Context, eventID string) error {
	return r.setStatus(eventID, domain.WebhookEventFailed)
}

func (r *webhookEventRepositoryInMemory) setStatus(eventID string, status domain.WebhookEventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.events[eventID]
	if !ok {
		return domain.ErrWebhookEventNotFound
	}
	entry.Status = status
	entry.UpdatedAt = r.now()
	r.events[eventID] = entry
	return nil
}

func (r *webhookEventRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, entry := range r.events {
		if limit > 0 && deleted >= limit {
			break
		}
		if entry.Expired(before) {
			delete(r.events, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
