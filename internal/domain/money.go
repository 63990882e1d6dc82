package domain

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest unit of its currency. Both supported currencies
// use two decimal places.
type Money struct {
	AmountMinor int64    `json:"amountMinor"`
	Currency    Currency `json:"currency"`
}

// MinorToMajor converts minor units to a decimal major-unit amount.
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// MajorToMinor converts a major-unit amount (as published by the backend) to minor units,
// rounding half away from zero.
func MajorToMinor(major float64) int64 {
	return decimal.NewFromFloat(major).Shift(2).Round(0).IntPart()
}

// Major returns the amount as a fixed two-decimal string without symbol, e.g. "100.00".
func (m Money) Major() string {
	return MinorToMajor(m.AmountMinor).StringFixed(2)
}

func (m Money) String() string {
	if m.AmountMinor < 0 {
		return "-" + m.Currency.Symbol() + MinorToMajor(-m.AmountMinor).StringFixed(2)
	}
	return m.Currency.Symbol() + m.Major()
}
