// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer minor units (paise). Decimal strings coming
// from clients are converted once at the edge and never round-tripped
// through float64 for arithmetic.
package core

import (
	"strconv"
	"strings"
)

// CurrencySymbol is the single implied currency of the ledger.
const CurrencySymbol = "₹"

// Money is an amount in minor units.
type Money struct {
	Cents int64
}

// Units builds Money from whole currency units.
func Units(u int64) Money {
	return Money{Cents: u * 100}
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// Dot (12.34) and comma (12,34) separators are both accepted, and the third
// fractional digit is rounded half-up. Negative, zero and malformed values
// return ErrInvalidAmount.
//
//	ParseDecimalToCents("1200")   -> 120000
//	ParseDecimalToCents("12,34")  -> 1234
//	ParseDecimalToCents("12.346") -> 1235
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrInvalidAmount
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Contains(frac, ".") {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidAmount
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxUnits = (1<<63 - 1) / 100
	if units > maxUnits {
		return 0, ErrInvalidAmount
	}

	var minor int64
	for i := 0; i < 2 && i < len(frac); i++ {
		minor = minor*10 + int64(frac[i]-'0')
	}
	if len(frac) == 1 {
		minor *= 10
	}
	if len(frac) > 2 && frac[2] >= '5' {
		minor++
	}

	cents := units*100 + minor
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseMoney is ParseDecimalToCents returning Money.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// allDigits accepts ASCII digits only; the fraction is read byte by byte.
func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Validate rejects non-positive amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m+o.
func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Sub returns m-o.
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Cents == 0 }

// Float returns the amount in currency units for display and for prompts.
// Never use it for arithmetic.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String renders the amount as a plain decimal ("1200.50").
func (m Money) String() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return sign + strconv.FormatInt(c/100, 10) + "." + twoDigits(c%100)
}

// Display renders the amount with the currency symbol and thousands
// grouping, dropping the fraction when it is zero ("₹1,200", "₹12.50").
func (m Money) Display() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	whole := strconv.FormatInt(c/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + CurrencySymbol + b.String()
	if c%100 != 0 {
		out += "." + twoDigits(c%100)
	}
	return out
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// MaxMoney returns the larger of a and b.
func MaxMoney(a, b Money) Money {
	if a.Cents > b.Cents {
		return a
	}
	return b
}
