package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func newWebhookJournalAt(t *testing.T, now time.Time) *webhookEventRepository {
	t.Helper()
	repo := NewWebhookEventRepository(openPostgresStoreForIntegrationTest(t)).(*webhookEventRepository)
	repo.now = func() time.Time { return now }
	return repo
}

func TestWebhookEventRepository_PostgresClaimLifecycle(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	repo := newWebhookJournalAt(t, now)
	ctx := context.Background()
	event := domain.WebhookEvent{ID: "evt_pg_1", Type: domain.WebhookEventPaymentSucceeded, PaymentIntentID: "pi_1"}

	entry, claimed, err := repo.Claim(ctx, event, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, domain.WebhookEventProcessing, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.True(t, entry.ExpiresAt.Equal(now.Add(time.Hour)))

	require.NoError(t, repo.MarkFailed(ctx, event.ID))

	reused := event
	reused.PaymentIntentID = "pi_other"
	entry, claimed, err = repo.Claim(ctx, reused, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, "pi_1", entry.PaymentIntentID)
	assert.False(t, entry.Matches(reused))

	require.NoError(t, repo.MarkHandled(ctx, event.ID))

	entry, claimed, err = repo.Claim(ctx, event, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, domain.WebhookEventHandled, entry.Status)
	assert.True(t, entry.ExpiresAt.Equal(now.Add(2*time.Hour)))
}

func TestWebhookEventRepository_PostgresExpiredEntryReplaced(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	repo := newWebhookJournalAt(t, now)
	ctx := context.Background()
	event := domain.WebhookEvent{ID: "evt_pg_2", Type: domain.WebhookEventPaymentFailed, PaymentIntentID: "pi_2"}

	_, _, err := repo.Claim(ctx, event, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkHandled(ctx, event.ID))

	later := now.Add(time.Hour)
	repo.now = func() time.Time { return later }
	event.Type = domain.WebhookEventPaymentSucceeded

	entry, claimed, err := repo.Claim(ctx, event, later.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, domain.WebhookEventPaymentSucceeded, entry.EventType)
	assert.True(t, entry.CreatedAt.Equal(later))
}

func TestWebhookEventRepository_PostgresDeleteExpired(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	repo := newWebhookJournalAt(t, now)
	ctx := context.Background()

	for i, id := range []string{"evt_old_1", "evt_old_2", "evt_live"} {
		expiresAt := now.Add(-time.Duration(2-i) * time.Minute)
		if id == "evt_live" {
			expiresAt = now.Add(time.Hour)
		}
		_, _, err := repo.Claim(ctx, domain.WebhookEvent{ID: id, Type: domain.WebhookEventPaymentSucceeded}, expiresAt)
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = repo.Get(ctx, "evt_old_1")
	assert.ErrorIs(t, err, domain.ErrWebhookEventNotFound)

	deleted, err = repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.Get(ctx, "evt_live")
	require.NoError(t, err)
}

func TestWebhookEventRepository_PostgresMissing(t *testing.T) {
	repo := newWebhookJournalAt(t, time.Now().UTC())
	ctx := context.Background()

	assert.ErrorIs(t, repo.MarkHandled(ctx, "nope"), domain.ErrWebhookEventNotFound)
	_, _, err := repo.Claim(ctx, domain.WebhookEvent{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrWebhookEventIDRequired)
}
