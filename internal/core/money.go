// Package core holds the budgeting domain model: money, categories, periods,
// the user records and the snapshot that groups them.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents). All arithmetic is exact.
type Money struct {
	Cents int64
}

// FromMajor builds a Money from whole currency units.
func FromMajor(units int64) Money {
	return Money{Cents: units * 100}
}

var maxCents = decimal.New(math.MaxInt64, 0)

// MoneyFromDecimal rounds d half away from zero to the nearest cent.
// Amounts beyond the int64 cent range fail with ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	c := d.Shift(2).Round(0)
	if c.Abs().GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: c.IntPart()}, nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

// MulInt multiplies by an integer factor.
func (m Money) MulInt(n int64) Money { return Money{Cents: m.Cents * n} }

// DivInt divides by n truncating toward zero. Division by zero yields zero.
func (m Money) DivInt(n int64) Money {
	if n == 0 {
		return Money{}
	}
	return Money{Cents: m.Cents / n}
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Major returns the amount as a float for display only.
func (m Money) Major() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// String formats the amount with two decimals, e.g. "1500.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a bare decimal number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a number or a quoted number in major units.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		m.Cents = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseDecimalToCents converts user input such as "12.34" or "12,34" to cents.
//
// Rounding is half-up on the third decimal. Signs, zero and malformed input
// are rejected with ErrInvalidAmount.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	m, err := MoneyFromDecimal(d)
	if err != nil || m.Cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return m.Cents, nil
}
