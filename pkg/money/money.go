// Package money holds the single rounding rule used for till arithmetic:
// round half-up to two decimals once per unit, then convert to minor units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Round rounds to two decimal places, half away from zero. Till amounts are
// never negative, so this is round half-up.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ApplyDiscount reduces price by percent (0-100). A nil percent leaves the
// price unchanged. The result is not rounded.
func ApplyDiscount(price decimal.Decimal, percent *decimal.Decimal) decimal.Decimal {
	if percent == nil || percent.IsZero() {
		return price
	}
	return price.Mul(hundred.Sub(*percent)).Div(hundred)
}

// UnitPrice returns the charged unit price: the custom price when set,
// otherwise the resolved gross, with the discount applied and rounded.
func UnitPrice(gross decimal.Decimal, customPrice, percent *decimal.Decimal) decimal.Decimal {
	base := gross
	if customPrice != nil {
		base = *customPrice
	}
	return Round(ApplyDiscount(base, percent))
}

// ToMinor converts an amount to integer minor units after rounding.
func ToMinor(amount decimal.Decimal) int64 {
	return Round(amount).Shift(2).IntPart()
}

// FromMinor converts minor units back to a two-decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}

// LineMinor is the minor-unit total for quantity units at unit price.
func LineMinor(unit decimal.Decimal, quantity int) int64 {
	return ToMinor(unit) * int64(quantity)
}

// ValidatePercent ensures a discount lies within [0, 100].
func ValidatePercent(percent decimal.Decimal) error {
	if percent.LessThan(zero) || percent.GreaterThan(hundred) {
		return fmt.Errorf("discount %s must be between 0 and 100", percent.String())
	}
	return nil
}

// ValidateScale rejects amounts with more than two decimal places, the scale
// stored for custom prices and discounts.
func ValidateScale(amount decimal.Decimal) error {
	if !amount.Equal(Round(amount)) {
		return fmt.Errorf("%s has more than two decimal places", amount.String())
	}
	return nil
}

// ValidateAmount ensures a price is non-negative.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThan(zero) {
		return fmt.Errorf("amount %s must not be negative", amount.String())
	}
	return nil
}
