package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BasketItem: позиция корзины в том виде, в каком её прислал клиент.
type BasketItem struct {
	// ProductID ссылается на товар каталога.
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	// Price: цена за единицу; перед созданием intent перезаписывается ценой из каталога.
	Price      decimal.Decimal `json:"price"`
	Quantity   int32           `json:"quantity"`
	PictureURL string          `json:"picture_url,omitempty"`
	Brand      string          `json:"brand,omitempty"`
	Type       string          `json:"type,omitempty"`
}

// Basket агрегирует выбранные покупателем позиции до оформления заказа.
type Basket struct {
	ID               string          `json:"id"`
	Items            []BasketItem    `json:"items"`
	DeliveryMethodID *int64          `json:"delivery_method_id,omitempty"`
	ShippingPrice    decimal.Decimal `json:"shipping_price"`
	PaymentIntentID  string          `json:"payment_intent_id,omitempty"`
	ClientSecret     string          `json:"client_secret,omitempty"`
	// Version используется хранилищем для optimistic locking.
	Version int64 `json:"version"`
}

// HasPaymentIntent сообщает, создан ли для корзины intent у провайдера.
func (b *Basket) HasPaymentIntent() bool {
	return strings.TrimSpace(b.PaymentIntentID) != ""
}

// Validate проверяет позиции корзины и возвращает список замечаний.
func (b *Basket) Validate() []error {
	var errs []error

	if strings.TrimSpace(b.ID) == "" {
		errs = append(errs, ErrBasketIDRequired)
	}
	for _, item := range b.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	return errs
}

// Clone возвращает глубокую копию корзины, чтобы хранилища не делили слайсы с вызывающим кодом.
func (b Basket) Clone() Basket {
	dst := b
	dst.Items = append([]BasketItem(nil), b.Items...)
	if b.DeliveryMethodID != nil {
		id := *b.DeliveryMethodID
		dst.DeliveryMethodID = &id
	}
	return dst
}
