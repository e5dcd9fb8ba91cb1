/*
Package money provides the fixed-point currency amount used by every ledger
calculation.

PURPOSE:
  Balances, orders and payments are summed thousands of times per ledger read.
  Binary floats drift; Money never does. Every component in this module works
  exclusively through this type.

REPRESENTATION:
  A signed decimal.Decimal with a minor-unit scale of 2 (cents). Values with
  more fractional digits are rejected at parse time, and products (quantity x
  unit cost) are rounded half-away-from-zero to the minor unit.

  Negative values are valid: a negative net balance means the company owes
  the party.

USAGE:
  price := money.MustParse("12.50")
  total := price.MulQuantity(decimal.NewFromInt(4)) // 50.00
  owed := total.Sub(money.New(20))                   // 30.00

SEE ALSO:
  - ledger/folder.go: running balances
  - ledger/allocation.go: payment apportioning
*/
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits in the minor unit.
const Scale int32 = 2

// ErrPrecision is returned when a value has more fractional digits than the
// minor unit allows.
var ErrPrecision = errors.New("amount below minor unit precision")

// =============================================================================
// MONEY
// =============================================================================

type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{d: decimal.Zero}

// New returns a whole-unit amount.
func New(units int64) Money { return Money{d: decimal.NewFromInt(units)} }

// FromMinor returns an amount from a count of minor units (cents).
func FromMinor(minor int64) Money { return Money{d: decimal.New(minor, -Scale)} }

// FromDecimal converts d, rejecting sub-minor-unit precision.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return Zero, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	return Money{d: d}, nil
}

// Parse reads a decimal string such as "1250.75".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests. It panics on bad input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Sum adds all amounts.
func Sum(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}

func (m Money) Add(o Money) Money           { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money           { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money                  { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money                  { return Money{d: m.d.Abs()} }
func (m Money) Cmp(o Money) int             { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool          { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool       { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool    { return m.d.GreaterThan(o.d) }
func (m Money) GreaterOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) IsZero() bool                { return m.d.IsZero() }
func (m Money) IsNegative() bool            { return m.d.IsNegative() }
func (m Money) IsPositive() bool            { return m.d.IsPositive() }
func (m Money) Decimal() decimal.Decimal    { return m.d }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// MulQuantity multiplies a unit price by a quantity and rounds to the minor unit.
func (m Money) MulQuantity(q decimal.Decimal) Money {
	return Money{d: m.d.Mul(q).Round(Scale)}
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(Scale) }

// Float64 is for display code (charts, spreadsheets) only.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// =============================================================================
// ENCODING
// =============================================================================

// MarshalJSON encodes as a quoted decimal string to keep precision in transit.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both "12.50" and 12.50.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*m = Zero
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores Money as TEXT.
func (m Money) Value() (driver.Value, error) { return m.String(), nil }

// Scan reads Money from TEXT, BLOB, INTEGER or REAL columns.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Zero
		return nil
	case string:
		return m.scanString(v)
	case []byte:
		return m.scanString(string(v))
	case int64:
		*m = New(v)
		return nil
	case float64:
		*m = Money{d: decimal.NewFromFloat(v).Round(Scale)}
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

func (m *Money) scanString(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
