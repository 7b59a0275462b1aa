package domain

import "github.com/shopspring/decimal"

// Product: товар каталога, источник истины для цены.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// DeliveryMethod: справочник способов доставки.
type DeliveryMethod struct {
	ID           int64
	ShortName    string
	DeliveryTime string
	Description  string
	Price        decimal.Decimal
}
