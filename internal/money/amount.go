// Package money implements exact fixed-point arithmetic for the ledger.
//
// Amounts are represented as signed integer cents (2 decimal places) so
// that every operation is exact and rounding only ever happens at the
// single HALF_UP boundary defined here. Nothing in this package depends
// on float64.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// MaxCents bounds the magnitude of any Amount: |value| <= 10^14 - 1, room
// for treasury aggregates per the ledger's data model.
const MaxCents = 100_000_000_000_000 - 1

var (
	// ErrOutOfRange is returned when an amount's magnitude exceeds MaxCents.
	ErrOutOfRange = errors.New("money: amount out of range")
	// ErrNotPositive is returned when an operation requires amount > 0.
	ErrNotPositive = errors.New("money: amount must be positive")
	// ErrInvalidFormat is returned when a decimal string cannot be parsed.
	ErrInvalidFormat = errors.New("money: invalid decimal format")
	// ErrCurrencyMismatch is returned when two amounts/accounts disagree on currency.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
)

// Currency is a closed set of supported ISO-ish currency codes.
type Currency string

const (
	BBD Currency = "BBD"
	USD Currency = "USD"
)

// Valid reports whether c is one of the closed set of supported currencies.
func (c Currency) Valid() bool {
	switch c {
	case BBD, USD:
		return true
	default:
		return false
	}
}

// Amount is an exact fixed-point quantity stored as signed integer cents.
type Amount struct {
	cents int64
}

// Zero is the additive identity.
var Zero = Amount{}

// FromCents builds an Amount directly from an integer cent count, validating range.
func FromCents(cents int64) (Amount, error) {
	if cents > MaxCents || cents < -MaxCents {
		return Amount{}, ErrOutOfRange
	}
	return Amount{cents: cents}, nil
}

// MustFromCents is FromCents but panics on error; for use with compile-time constants.
func MustFromCents(cents int64) Amount {
	a, err := FromCents(cents)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse decodes a decimal string such as "1000.00" or "-5.5" into an Amount,
// applying HALF_UP rounding if more than two fractional digits are supplied.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidFormat
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) {
		return Amount{}, ErrInvalidFormat
	}
	var fracCents int64
	if hasFrac {
		if !isDigits(frac) || frac == "" {
			return Amount{}, ErrInvalidFormat
		}
		fracCents = roundHalfUpFraction(frac)
	}
	wholeVal, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if fracCents == 100 {
		wholeVal++
		fracCents = 0
	}
	cents := wholeVal*100 + fracCents
	if neg {
		cents = -cents
	}
	return FromCents(cents)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// roundHalfUpFraction converts an arbitrary-length fractional digit string
// into a 0-100 cent value using HALF_UP rounding at the third digit. A
// result of 100 means the fraction rounded up to a whole unit; callers
// must carry that into the whole part themselves.
func roundHalfUpFraction(frac string) int64 {
	padded := frac
	for len(padded) < 3 {
		padded += "0"
	}
	twoDigits, _ := strconv.ParseInt(padded[:2], 10, 64)
	thirdDigit := padded[2]
	if thirdDigit >= '5' {
		twoDigits++
	}
	return twoDigits
}

// Cents returns the raw signed cent value.
func (a Amount) Cents() int64 { return a.cents }

// MarshalJSON renders the amount as its decimal string (e.g. "988.50") so
// wire payloads and stored idempotency results never expose the
// unexported cent representation directly.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses a decimal string back into an Amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// String renders the amount as a fixed 2-decimal-place string, e.g. "988.50".
func (a Amount) String() string {
	neg := a.cents < 0
	v := a.cents
	if neg {
		v = -v
	}
	whole := v / 100
	frac := v % 100
	s := fmt.Sprintf("%d.%02d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	switch {
	case a.cents < 0:
		return -1
	case a.cents > 0:
		return 1
	default:
		return 0
	}
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a.cents > 0 }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.cents == 0 }

// Add returns a+b, validating the result stays in range.
func (a Amount) Add(b Amount) (Amount, error) {
	return FromCents(a.cents + b.cents)
}

// Sub returns a-b, validating the result stays in range.
func (a Amount) Sub(b Amount) (Amount, error) {
	return FromCents(a.cents - b.cents)
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{cents: -a.cents}
}

// Cmp compares a and b: -1, 0, 1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.cents < b.cents:
		return -1
	case a.cents > b.cents:
		return 1
	default:
		return 0
	}
}

// RequirePositive returns ErrNotPositive if the amount is not strictly positive.
func (a Amount) RequirePositive() error {
	if !a.IsPositive() {
		return ErrNotPositive
	}
	return nil
}

// AllocateBps splits total into shares proportional to the supplied basis-point
// weights (summing to 10000), rounding each share down and assigning the
// remainder to the last non-zero share so that the shares always sum back
// to total exactly.
// This backs commission-split style templates (C7).
func AllocateBps(total Amount, bpsShares []uint32) ([]Amount, error) {
	var sum uint32
	for _, bps := range bpsShares {
		sum += bps
	}
	if sum != 10_000 {
		return nil, fmt.Errorf("money: bps shares must sum to 10000, got %d", sum)
	}
	if total.cents < 0 {
		return nil, ErrNotPositive
	}
	out := make([]Amount, len(bpsShares))
	allocated := int64(0)
	lastIdx := -1
	for i, bps := range bpsShares {
		raw := new(big.Int).Mul(big.NewInt(total.cents), big.NewInt(int64(bps)))
		raw.Div(raw, big.NewInt(10_000)) // floor; remainder reconciled below
		share := raw.Int64()
		out[i] = Amount{cents: share}
		allocated += share
		if bps > 0 {
			lastIdx = i
		}
	}
	remainder := total.cents - allocated
	if remainder != 0 {
		if lastIdx < 0 {
			return nil, fmt.Errorf("money: cannot allocate remainder with all-zero shares")
		}
		out[lastIdx] = Amount{cents: out[lastIdx].cents + remainder}
	}
	return out, nil
}
