// Package money converts between the ledger's integer minor units and the
// decimal strings shown in API responses.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minorDigits maps ISO currency codes to their minor-unit exponent.
// Everything unlisted defaults to 2.
var minorDigits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

func exponent(currency string) int32 {
	if d, ok := minorDigits[currency]; ok {
		return d
	}
	return 2
}

// FromMinor converts minor units to a decimal major-unit amount
func FromMinor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}

// ToMinor converts a decimal major-unit amount to minor units. It fails if
// the value carries more precision than the currency allows.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	exp := exponent(currency)
	scaled := amount.Shift(exp)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-minor-unit precision for %s", amount.String(), currency)
	}
	return scaled.IntPart(), nil
}

// FormatMinor renders minor units as a fixed-point string, e.g. 4500 -> "45.00"
func FormatMinor(amount int64, currency string) string {
	return FromMinor(amount, currency).StringFixed(exponent(currency))
}
