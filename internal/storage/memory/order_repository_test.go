package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func pendingOrder(id, intentID string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:              id,
		BuyerEmail:      "bob@example.com",
		Status:          domain.OrderStatusPending,
		PaymentIntentID: intentID,
		Currency:        "usd",
		AmountMinor:     2500,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestOrderRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(ctx, pendingOrder("order-1", "pi_1")))

	byID, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	byIntent, err := repo.FindByPaymentIntentID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, byID, byIntent)

	_, err = repo.Get(ctx, "order-404")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = repo.FindByPaymentIntentID(ctx, "pi_unknown")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = repo.FindByPaymentIntentID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_CreateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(ctx, pendingOrder("order-1", "pi_1")))

	assert.ErrorIs(t, repo.Create(ctx, pendingOrder("order-1", "pi_2")), domain.ErrOrderVersionConflict)
	assert.ErrorIs(t, repo.Create(ctx, pendingOrder("order-2", "pi_1")), domain.ErrPaymentIntentTaken)

	_, err := repo.Get(ctx, "order-2")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound, "rejected order must not be stored")
}

func TestOrderRepository_SaveBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(ctx, pendingOrder("order-1", "pi_1")))

	stored, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	stored.Status = domain.OrderStatusPaymentReceived
	require.NoError(t, repo.Save(ctx, stored))

	updated, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaymentReceived, updated.Status)
	assert.Equal(t, stored.Version+1, updated.Version)

	assert.ErrorIs(t, repo.Save(ctx, stored), domain.ErrOrderVersionConflict, "stale version")
	assert.ErrorIs(t, repo.Save(ctx, pendingOrder("order-404", "")), domain.ErrOrderNotFound)
}

func TestOrderRepository_SaveMovesIntent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(ctx, pendingOrder("order-1", "pi_1")))
	require.NoError(t, repo.Create(ctx, pendingOrder("order-2", "pi_2")))

	order, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)

	order.PaymentIntentID = "pi_2"
	assert.ErrorIs(t, repo.Save(ctx, order), domain.ErrPaymentIntentTaken)

	order.PaymentIntentID = "pi_3"
	require.NoError(t, repo.Save(ctx, order))

	found, err := repo.FindByPaymentIntentID(ctx, "pi_3")
	require.NoError(t, err)
	assert.Equal(t, "order-1", found.ID)
	_, err = repo.FindByPaymentIntentID(ctx, "pi_1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
