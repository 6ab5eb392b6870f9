package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every amount.
const Scale = 2

var (
	amountPattern = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
	// decimal(10,2)
	maxAmount = decimal.RequireFromString("99999999.99")

	ErrInvalidAmount = errors.New("invalid_amount")
)

// Parse reads a plain decimal string ("15", "10.01") into an amount. Signs, exponents, and values that
// need more than two fractional digits are rejected rather than rounded.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Scale)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount exceeds %s", ErrInvalidAmount, Format(maxAmount))
	}
	return d.Truncate(Scale), nil
}

// Format renders an amount with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
