// Package moneypkg provides fixed-point money helpers matching the NUMERIC(16,6) columns.
package moneypkg

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits stored for every amount.
const Scale = 6

// maxIntegerDigits is the number of digits left of the point in NUMERIC(16,6).
const maxIntegerDigits = 10

var (
	// ErrInvalid indicates the value is not a decimal number.
	ErrInvalid = errors.New("invalid amount")
	// ErrNotPositive indicates the value is zero or negative.
	ErrNotPositive = errors.New("amount must be positive")
	// ErrPrecision indicates the value does not fit into NUMERIC(16,6).
	ErrPrecision = errors.New("amount exceeds supported precision")
)

var upperBound = decimal.New(1, maxIntegerDigits)

// Parse converts s into a positive amount representable without rounding.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalid
	}

	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}

	if !Fits(d) {
		return decimal.Zero, ErrPrecision
	}

	return d, nil
}

// Fits reports whether d is storable with Scale fractional digits and no rounding.
func Fits(d decimal.Decimal) bool {
	if d.Abs().GreaterThanOrEqual(upperBound) {
		return false
	}

	return d.Equal(d.Truncate(Scale))
}

// Cost returns amount × price rounded up to Scale, so a purchase is never undercharged.
func Cost(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price).RoundCeil(Scale)
}
