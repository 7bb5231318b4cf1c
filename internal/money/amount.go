// Package money implements the fixed-point amount type shared by the
// ledger store, the money engine, and outbox event payloads.
//
// Amounts never touch a float. They arrive and leave as decimal strings;
// internally they are a scaled int64 (four fractional digits), matching
// the column type `decimal(19,4)`.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried internally.
const Scale = 4

// eventScale is the fractional precision used when formatting amounts
// for outbox event payloads (spec: persisted rows keep 4, events show 2).
const eventScale = 2

var (
	ErrMalformedAmount  = errors.New("money: malformed amount")
	ErrNonPositiveAmount = errors.New("money: amount must be positive")
	ErrTooManyFractionalDigits = errors.New("money: at most 4 fractional digits allowed")
	ErrNegativeBalance  = errors.New("money: balance would be negative")
)

// Amount is a non-negative-or-positive fixed-point quantity scaled by 10^4.
// Zero value is zero.
type Amount struct {
	scaled int64
}

// Zero is the additive identity.
var Zero = Amount{}

// ParsePositive parses a decimal string as a strictly positive amount with
// at most 4 fractional digits, per spec §4.2 step 2 (syntactic validation).
func ParsePositive(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return Amount{}, err
	}
	if a.scaled <= 0 {
		return Amount{}, ErrNonPositiveAmount
	}
	return a, nil
}

// Parse parses a decimal string into an Amount without a positivity check,
// used for balances and snapshots that may legitimately be zero.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrMalformedAmount, err)
	}
	if d.Exponent() < -Scale {
		return Amount{}, ErrTooManyFractionalDigits
	}
	scaled := d.Shift(Scale)
	if !scaled.IsInteger() {
		return Amount{}, ErrTooManyFractionalDigits
	}
	return Amount{scaled: scaled.IntPart()}, nil
}

// FromScaled builds an Amount from an already-scaled integer, the inverse
// of Scaled. Request parsing goes through Parse/ParsePositive instead.
func FromScaled(scaled int64) Amount { return Amount{scaled: scaled} }

// Scaled returns the raw scaled-by-10^4 integer, for storage.
func (a Amount) Scaled() int64 { return a.scaled }

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return Amount{scaled: a.scaled + b.scaled} }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return Amount{scaled: a.scaled - b.scaled} }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.scaled > 0 }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.scaled < 0 }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.scaled < b.scaled }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.scaled > b.scaled }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.scaled == b.scaled }

// String renders the amount with 4 fractional digits, for persisted rows.
func (a Amount) String() string {
	return decimal.New(a.scaled, -Scale).StringFixed(Scale)
}

// EventString renders the amount with 2 fractional digits, for outbox
// event payloads (spec §6).
func (a Amount) EventString() string {
	return decimal.New(a.scaled, -Scale).StringFixed(eventScale)
}
