package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of minor-unit digits carried by every stored amount.
const Places = 2

// Precision is the total number of digits a stored amount may carry, matching
// the NUMERIC(15,2) columns.
const Precision = 15

// ErrMalformed is returned when an amount cannot be parsed or carries more
// fractional digits than the currency allows.
var ErrMalformed = errors.New("malformed amount")

// Amount is an exact fixed-point monetary value with two fractional digits.
// The zero value is 0.00.
type Amount struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Amount{}

// Limit is the largest magnitude a stored amount or balance may reach.
var Limit = Amount{d: decimal.New(1, Precision-Places).Sub(decimal.New(1, -Places))}

// Parse reads a decimal string such as "100", "100.5" or "100.50".
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrMalformed
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !d.Equal(d.Truncate(Places)) {
		return Amount{}, fmt.Errorf("%w: more than %d fractional digits", ErrMalformed, Places)
	}
	a := Amount{d: d}
	if !a.WithinLimit() {
		return Amount{}, fmt.Errorf("%w: magnitude exceeds %s", ErrMalformed, Limit)
	}
	return a, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMinor builds an amount from minor units (cents).
func FromMinor(minor int64) Amount {
	return Amount{d: decimal.New(minor, -Places)}
}

// FromDecimal rounds d half away from zero to two places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Places)}
}

// Decimal exposes the underlying value for arithmetic that needs more precision.
func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

func (a Amount) IsPositive() bool { return a.d.IsPositive() }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }

func (a Amount) IsZero() bool { return a.d.IsZero() }

// WithinLimit reports whether a fits the stored precision.
func (a Amount) WithinLimit() bool { return a.d.Abs().LessThanOrEqual(Limit.d) }

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string { return a.d.StringFixed(Places) }

// MarshalJSON emits the amount as a quoted fixed-point string so clients never
// round-trip it through binary floating point.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
