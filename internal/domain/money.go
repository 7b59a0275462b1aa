package domain

import "github.com/shopspring/decimal"

// MinorUnitExponent задаёт число знаков после запятой у поддерживаемых валют (центы для USD и EUR).
const MinorUnitExponent = 2

// MinorUnits переводит цену в минимальные денежные единицы (например, 10.00 -> 1000).
// Значение округляется до точности минимальной единицы; float для денег не используется.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Round(MinorUnitExponent).Shift(MinorUnitExponent).IntPart()
}

// FromMinorUnits выполняет обратное преобразование: 1000 -> 10.00.
func FromMinorUnits(amountMinor int64) decimal.Decimal {
	return decimal.New(amountMinor, -MinorUnitExponent)
}
