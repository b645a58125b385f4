package enums

import (
	"fmt"
	"strings"
)

// Currency is the ISO 4217 code a till deployment charges in.
type Currency string

const (
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

// minorDigits lists the supported codes. Amounts are stored in minor units,
// and the money package rounds to two places, so only two-digit currencies
// are accepted.
var minorDigits = map[Currency]int32{
	CurrencyGBP: 2,
	CurrencyEUR: 2,
	CurrencyUSD: 2,
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, ok := minorDigits[c]
	return ok
}

// MinorDigits is the number of decimal places in one major unit.
func (c Currency) MinorDigits() int32 {
	return minorDigits[c]
}

// ParseCurrency accepts any letter case and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
