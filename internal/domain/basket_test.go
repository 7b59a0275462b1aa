package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func makeBasket() domain.Basket {
	deliveryID := int64(2)
	return domain.Basket{
		ID: "basket-1",
		Items: []domain.BasketItem{
			{ProductID: 1, ProductName: "Boots", Price: decimal.RequireFromString("10.00"), Quantity: 2},
			{ProductID: 3, ProductName: "Gloves", Price: decimal.RequireFromString("5.50"), Quantity: 1},
		},
		DeliveryMethodID: &deliveryID,
	}
}

func TestBasketValidate(t *testing.T) {
	b := makeBasket()
	require.Empty(t, b.Validate())

	b.ID = "  "
	b.Items[0].Quantity = 0
	b.Items[1].Price = decimal.NewFromInt(-1)

	errs := b.Validate()
	require.Len(t, errs, 3)
	require.ErrorIs(t, errs[0], domain.ErrBasketIDRequired)
	require.ErrorIs(t, errs[1], domain.ErrItemQtyInvalid)
	require.ErrorIs(t, errs[2], domain.ErrItemPriceInvalid)
}

func TestBasketHasPaymentIntent(t *testing.T) {
	b := makeBasket()
	require.False(t, b.HasPaymentIntent())

	b.PaymentIntentID = "pi_123"
	require.True(t, b.HasPaymentIntent())
}

func TestBasketCloneDoesNotShareState(t *testing.T) {
	b := makeBasket()
	clone := b.Clone()

	clone.Items[0].Price = decimal.NewFromInt(99)
	*clone.DeliveryMethodID = 7

	require.True(t, b.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	require.Equal(t, int64(2), *b.DeliveryMethodID)
}
