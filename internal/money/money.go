// Package money holds the currency helpers shared by the ledger and the HTTP
// layer. Arithmetic stays in decimal.Decimal; values are rounded to cents only
// when they are displayed.
package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the code every balance is denominated in.
const Currency = gomoney.USD

// Round rounds to whole cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents returns d in minor units after rounding.
func Cents(d decimal.Decimal) int64 {
	return Round(d).Shift(2).IntPart()
}

// Format renders d as a currency string with exactly two decimals, e.g. "$9,740.00".
func Format(d decimal.Decimal) string {
	return gomoney.New(Cents(d), Currency).Display()
}

// Fixed renders d with exactly two decimals and no currency symbol.
func Fixed(d decimal.Decimal) string {
	return Round(d).StringFixed(2)
}
