// Package money formats amounts stored as signed minor units.
package money

import "github.com/shopspring/decimal"

// Format renders minor units with two decimals, e.g. -150075 as "-1500.75".
func Format(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// FormatAbs renders the magnitude of minor units with two decimals.
func FormatAbs(minor int64) string {
	return decimal.New(minor, -2).Abs().StringFixed(2)
}
