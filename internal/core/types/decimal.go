// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Quantity is an amount of material with full decimal precision.
// Ledger quantities are stored unrounded; rounding happens only for display.
type Quantity = decimal.Decimal

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Default scales used when nothing is configured.
const (
	DefaultDisplayScale int32 = 4
	DefaultPriceScale   int32 = 4
)

// NewFromString parses a decimal literal.
// This is the preferred constructor for quantities and prices.
func NewFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustDecimal parses s, panics on error.
// Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns the zero decimal.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// RoundHalfUp rounds d to scale digits, halves going away from zero.
func RoundHalfUp(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Rounder formats decimals for display at a fixed scale.
type Rounder struct {
	Scale int32
}

// NewRounder creates a rounder; negative scales fall back to the default.
func NewRounder(scale int32) Rounder {
	if scale < 0 {
		scale = DefaultDisplayScale
	}
	return Rounder{Scale: scale}
}

// Round returns d rounded half-up at the rounder's scale.
func (r Rounder) Round(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, r.Scale)
}

// String returns d rounded half-up with exactly Scale fractional digits.
func (r Rounder) String(d decimal.Decimal) string {
	return d.StringFixed(r.Scale)
}
