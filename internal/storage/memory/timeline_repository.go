package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type timelineRepositoryInMemory struct {
	mu      sync.Mutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт историю заказов в памяти.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет запись с сохранением порядка по Occurred: уведомления
// провайдера приходят не по порядку. Записи с равным временем идут в порядке вставки.
func (r *timelineRepositoryInMemory) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.byOrder[event.OrderID]
	i := len(history)
	for i > 0 && history[i-1].Occurred.After(event.Occurred) {
		i--
	}
	r.byOrder[event.OrderID] = slices.Insert(history, i, event)
	return nil
}

func (r *timelineRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
