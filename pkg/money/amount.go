package money

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a currency value held as integer cents. It encodes to JSON as a
// decimal number (150.25) and is stored as BIGINT cents.
type Amount int64

func Cents(c int64) Amount { return Amount(c) }

// FromDecimal rounds d to whole cents.
func FromDecimal(d decimal.Decimal) Amount { return Amount(ToCents(d)) }

func (a Amount) Cents() int64 { return int64(a) }

func (a Amount) Decimal() decimal.Decimal { return FromCents(int64(a)) }

func (a Amount) String() string { return a.Decimal().StringFixed(2) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %q", string(b))
	}
	*a = FromDecimal(d)
	return nil
}
