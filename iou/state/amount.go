package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when combining amounts of different currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Amount is a decimal quantity denominated in a currency.
type Amount struct {
	Quantity decimal.Decimal `json:"quantity"`
	Currency string          `json:"currency"`
}

// NewAmount builds an amount, normalizing the currency code to upper case.
func NewAmount(quantity decimal.Decimal, currency string) Amount {
	return Amount{Quantity: quantity, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// AmountOf builds an amount from an integer quantity.
func AmountOf(quantity int64, currency string) Amount {
	return NewAmount(decimal.NewFromInt(quantity), currency)
}

// ZeroAmount is the zero quantity of currency.
func ZeroAmount(currency string) Amount {
	return NewAmount(decimal.Zero, currency)
}

// IsPositive reports whether the quantity is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.Quantity.IsPositive()
}

// IsZero reports whether the quantity is zero.
func (a Amount) IsZero() bool {
	return a.Quantity.IsZero()
}

// IsNegative reports whether the quantity is below zero.
func (a Amount) IsNegative() bool {
	return a.Quantity.IsNegative()
}

// SameCurrency reports whether both amounts share a denomination.
func (a Amount) SameCurrency(other Amount) bool {
	return a.Currency == other.Currency
}

// Equal compares quantity numerically and currency exactly.
func (a Amount) Equal(other Amount) bool {
	return a.SameCurrency(other) && a.Quantity.Equal(other.Quantity)
}

// Add returns a + other.
func (a Amount) Add(other Amount) (Amount, error) {
	if !a.SameCurrency(other) {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, other.Currency)
	}

	return Amount{Quantity: a.Quantity.Add(other.Quantity), Currency: a.Currency}, nil
}

// Sub returns a - other.
func (a Amount) Sub(other Amount) (Amount, error) {
	if !a.SameCurrency(other) {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, other.Currency)
	}

	return Amount{Quantity: a.Quantity.Sub(other.Quantity), Currency: a.Currency}, nil
}

// LessThanOrEqual reports a <= other. Amounts of different currencies are
// never comparable and yield false.
func (a Amount) LessThanOrEqual(other Amount) bool {
	return a.SameCurrency(other) && a.Quantity.LessThanOrEqual(other.Quantity)
}

// String renders "100.5 USD".
func (a Amount) String() string {
	return a.Quantity.String() + " " + a.Currency
}
