package domain

import "github.com/shopspring/decimal"

// Cent is the smallest representable amount and the settled-balance tolerance.
var Cent = decimal.New(1, -2)

// maxAmount is the exclusive bound of NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// CheckAmount rejects amounts that cannot be stored exactly as cents.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return InvalidArgument("amount %s has more than two decimal places", amount)
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return InvalidArgument("amount %s is out of range", amount)
	}
	return nil
}

// ToCents converts a checked amount to integer cents.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents is the inverse of ToCents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
