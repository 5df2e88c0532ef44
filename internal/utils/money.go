package utils

import "github.com/shopspring/decimal"

// FormatMinor renders an amount in minor currency units with two decimals,
// e.g. 18877 -> "188.77".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
