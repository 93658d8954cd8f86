package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// Money is an amount in minor units (cents) of a single currency.
// All balances, reservations and bid amounts in the system are Money values
// and are never negative.
type Money struct {
	Amount   int64
	Currency Currency
}

// minorUnitExponent is 2 for every supported currency.
const minorUnitExponent = 2

func NewMoney(amount int64, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("NewMoney: %q: %w", currency, ErrInvalidCurrency)
	}
	if amount < 0 {
		return Money{}, fmt.Errorf("NewMoney: %d: %w", amount, ErrInvalidAmount)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ParseMoney converts a decimal string such as "1250.00" into minor units.
// Fractions finer than the currency's minor unit are rejected rather than
// rounded.
func ParseMoney(value string, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("ParseMoney: %q: %w", currency, ErrInvalidCurrency)
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("ParseMoney: %q: %w", value, ErrInvalidAmount)
	}

	minor := d.Shift(minorUnitExponent)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("ParseMoney: %q has sub-minor-unit precision: %w", value, ErrInvalidAmount)
	}
	if minor.IsNegative() {
		return Money{}, fmt.Errorf("ParseMoney: %q: %w", value, ErrInvalidAmount)
	}

	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("Add: %s + %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Sub fails with ErrInsufficientFunds when the result would go negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("Sub: %s - %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	if m.Amount < o.Amount {
		return Money{}, fmt.Errorf("Sub: %d - %d: %w", m.Amount, o.Amount, ErrInsufficientFunds)
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or 1 comparing m against o.
func (m Money) Cmp(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, fmt.Errorf("Cmp: %s vs %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) IsPositive() bool { return m.Amount > 0 }

// String renders the amount as a fixed-point decimal, e.g. "1250.00".
func (m Money) String() string {
	return decimal.New(m.Amount, -minorUnitExponent).StringFixed(minorUnitExponent)
}
