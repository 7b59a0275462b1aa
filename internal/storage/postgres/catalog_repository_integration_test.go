package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestCatalogRepositories_Postgres(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	products := NewProductRepository(store)
	delivery := NewDeliveryMethodRepository(store)
	ctx := context.Background()

	require.NoError(t, products.UpsertProduct(ctx, domain.Product{ID: 1, Name: "Boots", Price: decimal.RequireFromString("10.00")}))
	require.NoError(t, products.UpsertProduct(ctx, domain.Product{ID: 1, Name: "Boots", Price: decimal.RequireFromString("12.50")}))

	p, err := products.GetByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, p.Price.Equal(decimal.RequireFromString("12.50")), "unexpected price %s", p.Price)

	_, err = products.GetByID(ctx, 404)
	require.True(t, errors.Is(err, domain.ErrProductNotFound))

	require.NoError(t, delivery.UpsertDeliveryMethod(ctx, domain.DeliveryMethod{
		ID:           1,
		ShortName:    "UPS1",
		DeliveryTime: "1-2 Days",
		Description:  "Fastest delivery time",
		Price:        decimal.RequireFromString("5.00"),
	}))

	dm, err := delivery.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "UPS1", dm.ShortName)
	require.Equal(t, int64(500), domain.MinorUnits(dm.Price))

	_, err = delivery.GetByID(ctx, 404)
	require.True(t, errors.Is(err, domain.ErrDeliveryMethodNotFound))
}
