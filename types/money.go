// Package types provides the value types shared by every verity ledger.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// BpsDenominator is the number of basis points in a whole.
const BpsDenominator int64 = 10000

// MaxAmount is the largest single amount the engine accepts on input.
// Balances built from many such amounts still fit in an int64.
const MaxAmount int64 = 1_000_000_000_000_000

// Money is an amount in the smallest unit of a currency.
// Arithmetic is integer-only; mixing currencies panics.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns Money for amount minor units of currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// USD creates a Money value in US cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// Zero returns a zero Money value in currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies the amount by qty.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Percent returns pct/100 of m, rounded toward zero.
func (m Money) Percent(pct int64) Money {
	return Money{Amount: mulDiv(m.Amount, pct, 100), Currency: m.Currency}
}

// Bps returns bps/10000 of m, rounded toward zero.
func (m Money) Bps(bps int64) Money {
	return Money{Amount: mulDiv(m.Amount, bps, BpsDenominator), Currency: m.Currency}
}

// mulDiv returns a*b/d rounded toward zero with a 128-bit intermediate, so
// it is exact whenever the result fits in an int64. Panics otherwise.
func mulDiv(a, b, d int64) int64 {
	if d <= 0 {
		panic("types: non-positive divisor")
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(abs64(a), abs64(b))
	if hi >= uint64(d) {
		panic("types: amount overflow")
	}
	q, _ := bits.Div64(hi, lo, uint64(d))
	if neg {
		if q > uint64(math.MaxInt64)+1 {
			panic("types: amount overflow")
		}
		return int64(-q)
	}
	if q > math.MaxInt64 {
		panic("types: amount overflow")
	}
	return int64(q)
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// SplitBps divides m into one share per weight. Every share but the last is
// rounded toward zero; the last absorbs the remainder so the shares always
// sum to m exactly.
func (m Money) SplitBps(weights ...int64) []Money {
	shares := make([]Money, len(weights))
	if len(weights) == 0 {
		return shares
	}
	rest := m
	for i, w := range weights[:len(weights)-1] {
		shares[i] = m.Bps(w)
		rest = rest.Subtract(shares[i])
	}
	shares[len(shares)-1] = rest
	return shares
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan reports m < other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan reports m > other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// Min returns the smaller of two Money values.
func (m Money) Min(other Money) Money {
	if m.LessThan(other) {
		return m
	}
	return other
}

// Max returns the larger of two Money values.
func (m Money) Max(other Money) Money {
	if m.GreaterThan(other) {
		return m
	}
	return other
}

// SameCurrency reports whether other is denominated like m.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// FormatMajor renders the amount in major units with two decimals.
func (m Money) FormatMajor() string {
	abs := m.Amount
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// String returns e.g. "12.50 usd".
func (m Money) String() string {
	return m.FormatMajor() + " " + m.Currency
}

// MarshalJSON adds a display field next to amount and currency.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON accepts the MarshalJSON form; the display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = New(v.Amount, v.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// Sum adds values in currency.
func Sum(currency string, values ...Money) Money {
	total := Zero(currency)
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
