package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fraction digits the ledger keeps. Balances
// and amounts are fixed-point decimals with cent precision.
const AmountScale = 2

// ParseAmount parses a decimal string into a ledger amount. It rejects
// values carrying more than AmountScale fraction digits rather than
// rounding them silently.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d fraction digits", s, AmountScale)
	}
	return d, nil
}

// CheckAmount validates an operation amount: strictly positive, cent
// precision.
func CheckAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d fraction digits", ErrInvalidAmount, AmountScale)
	}
	return nil
}

// CheckOpeningBalance validates an initial balance: zero is allowed.
func CheckOpeningBalance(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d fraction digits", ErrInvalidAmount, AmountScale)
	}
	return nil
}

// FormatAmount renders d with the ledger's fixed scale.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
