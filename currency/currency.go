/*
Package currency provides the fixed-point monetary type used by the ledger.

PURPOSE:
  Every balance, entry fee and prize in the system is an Amount: an integer
  count of cents. Arithmetic happens on the integer, so there is no rounding
  drift. Text with exactly two fractional digits exists only at the edges
  (HTTP payloads, CLI output).

PARSING RULES:
  Accepted:  "5", "5.", "5.5", "5.50", "0.07"
  Rejected:  "5.505" (more than two fractional digits)
             "-5", "+5" (signs)
             "5e2" (exponents)
             "abc", "", "." (non-numeric)
             values that do not fit in int64 cents

  Conversion from text to cents goes through decimal.Decimal so it is exact
  for every accepted input.

OVERFLOW:
  Add wraps like any int64. Code that credits a stored balance uses
  CheckedAdd, which reports ErrOverflow instead.

FORMATTING:
  String() always renders two fractional digits: FromCents(1300) -> "13.00".

JSON:
  Amount marshals as a string ("13.00") and unmarshals from either a string
  or a bare JSON number that follows the same grammar.

SEE ALSO:
  - ledger/player_ledger.go: balance mutations
  - api/dto.go: boundary formatting
*/
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Integer cents
// =============================================================================

// Amount is a monetary value in cents.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

var (
	// ErrInvalidAmount is returned by Parse for any input outside the grammar.
	ErrInvalidAmount = errors.New("invalid currency amount")

	// ErrOverflow is returned by CheckedAdd when the sum does not fit in int64 cents.
	ErrOverflow = errors.New("currency amount overflow")
)

var hundred = decimal.NewFromInt(100)

// FromCents builds an Amount from a count of cents.
func FromCents(cents int64) Amount { return Amount(cents) }

// FromUnits builds an Amount from whole units (dollars).
func FromUnits(units int64) Amount { return Amount(units * 100) }

// MustParse is Parse for literals in tests and seed data. It panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse converts decimal text with at most two fractional digits into cents.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" || !allDigits(whole) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if hasDot {
		if len(frac) > 2 {
			return 0, fmt.Errorf("%w: %q has more than two fractional digits", ErrInvalidAmount, s)
		}
		if !allDigits(frac) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	text := whole
	if frac != "" {
		text = whole + "." + frac
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := d.Mul(hundred)
	if !cents.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Amount(cents.IntPart()), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Cents returns the raw integer value.
func (a Amount) Cents() int64 { return int64(a) }

// Decimal returns the amount in units as a decimal.Decimal.
func (a Amount) Decimal() decimal.Decimal { return decimal.New(int64(a), -2) }

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string { return a.Decimal().StringFixed(2) }

func (a Amount) Add(b Amount) Amount    { return a + b }
func (a Amount) Sub(b Amount) Amount    { return a - b }
func (a Amount) Cmp(b Amount) int       { return cmpInt(int64(a), int64(b)) }
func (a Amount) LessThan(b Amount) bool { return a < b }
func (a Amount) IsNegative() bool       { return a < 0 }
func (a Amount) IsPositive() bool       { return a > 0 }
func (a Amount) IsZero() bool           { return a == 0 }

// CheckedAdd is Add that fails with ErrOverflow instead of wrapping past
// the int64 range.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sum, nil
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// JSON
// =============================================================================

// MarshalJSON encodes the amount as a two-decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts "13.00" or 13.00.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
