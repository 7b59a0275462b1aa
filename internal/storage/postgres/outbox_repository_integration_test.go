package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func newOutboxAt(t *testing.T, now time.Time) *outboxRepository {
	t.Helper()
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t)).(*outboxRepository)
	repo.now = func() time.Time { return now }
	return repo
}

func TestOutboxRepository_PostgresLifecycle(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	repo := newOutboxAt(t, base)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.payment_received",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, base, first.CreatedAt)

	repo.now = func() time.Time { return base.Add(time.Second) }
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     "order.payment_failed",
	})
	require.NoError(t, err)
	assert.Equal(t, "outbox-2", second.ID)

	batch, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID)
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(batch[0].Payload))
	assert.Equal(t, "outbox-2", batch[1].ID)

	limited, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.Equal(base))

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, "outbox-2", "kafka: out of brokers"))

	// Закрытое сообщение повторно не закрывается.
	assert.ErrorIs(t, repo.MarkSent(ctx, first.ID), domain.ErrOutboxPublish)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", "x"), domain.ErrOutboxPublish)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.Equal(t, 1, stats.FailedCount)
	assert.True(t, stats.OldestPendingAt.IsZero())

	var (
		attempts  int
		lastError string
	)
	err = repo.db.QueryRowContext(ctx,
		`SELECT attempts, last_error FROM outbox_messages WHERE id = $1`, "outbox-2",
	).Scan(&attempts, &lastError)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "kafka: out of brokers", lastError)
}

func TestOutboxRepository_PostgresRejectsInvalid(t *testing.T) {
	repo := newOutboxAt(t, time.Now().UTC())

	_, err := repo.Enqueue(context.Background(), domain.OutboxMessage{AggregateID: "order-1"})
	assert.ErrorIs(t, err, domain.ErrOutboxPublish)
}
