// Package amount implements the fixed-point monetary unit used across the
// ledger: a signed 63-bit integer count of smallest units, with exactly six
// fractional digits of external decimal precision.
package amount

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// SmallestUnitDigits is the number of fractional decimal digits represented
// by one smallest unit (10^-6 of the base coin).
const SmallestUnitDigits = 6

// MaxAmount is the largest representable amount: fits in a 63-bit signed
// range as required by validation rule 5.
const MaxAmount = (int64(1) << 62) - 1

var scale = int64(1_000_000)

// Amount is an integer count of smallest units.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromSmallestUnits constructs an Amount directly from its integer smallest
// unit representation, validating the 63-bit range.
func FromSmallestUnits(units int64) (Amount, error) {
	if units < 0 || units > MaxAmount {
		return 0, errs.New(errs.ErrAmountOutOfRange, "amount %d out of range", units)
	}
	return Amount(units), nil
}

// Parse decodes a decimal string with up to six fractional digits into an
// Amount of smallest units.
func Parse(decimal string) (Amount, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return 0, errs.New(errs.ErrMalformedInput, "empty amount")
	}
	neg := false
	if strings.HasPrefix(decimal, "-") {
		neg = true
		decimal = decimal[1:]
	}
	parts := strings.SplitN(decimal, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > SmallestUnitDigits {
		return 0, errs.New(errs.ErrMalformedInput, "too many fractional digits in %q", decimal)
	}
	for len(frac) < SmallestUnitDigits {
		frac += "0"
	}
	wholeVal, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, errs.New(errs.ErrMalformedInput, "malformed amount %q: %s", decimal, err)
	}
	fracVal, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return 0, errs.New(errs.ErrMalformedInput, "malformed amount %q: %s", decimal, err)
	}
	units := wholeVal*scale + fracVal
	if neg {
		units = -units
	}
	return FromSmallestUnits(units)
}

// String renders the amount as a decimal with exactly six fractional digits.
func (a Amount) String() string {
	units := int64(a)
	neg := units < 0
	if neg {
		units = -units
	}
	whole := units / scale
	frac := units % scale
	s := fmt.Sprintf("%d.%06d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// Units returns the raw smallest-unit integer value.
func (a Amount) Units() int64 { return int64(a) }

// Positive reports whether the amount is strictly greater than zero, as
// required of every TxOutput amount.
func (a Amount) Positive() bool { return a > 0 }

// Add returns a+b, erroring if the result would overflow the 63-bit range.
func Add(a, b Amount) (Amount, error) {
	sum := int64(a) + int64(b)
	if sum < int64(a) || sum > MaxAmount {
		return 0, errs.New(errs.ErrAmountOutOfRange, "amount overflow adding %s and %s", a, b)
	}
	return Amount(sum), nil
}

// Sub returns a-b without range checking the result's sign; callers that
// require a non-negative difference (e.g. fee computation) must check it.
func Sub(a, b Amount) Amount {
	return Amount(int64(a) - int64(b))
}

// Value implements driver.Valuer so an Amount can be written directly into
// a NUMERIC(14,6) column (blocks.reward, transactions.fees,
// pending_transactions.fees) as its decimal string, rather than the raw
// smallest-unit integer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner, the inverse of Value: it accepts whatever
// shape the postgres driver hands back for a NUMERIC column (pq surfaces
// it as []byte or string) and parses it back into smallest units.
func (a *Amount) Scan(value interface{}) error {
	if value == nil {
		*a = 0
		return nil
	}
	var decimal string
	switch v := value.(type) {
	case []byte:
		decimal = string(v)
	case string:
		decimal = v
	case float64:
		decimal = strconv.FormatFloat(v, 'f', SmallestUnitDigits, 64)
	case int64:
		decimal = strconv.FormatInt(v, 10)
	default:
		return errs.New(errs.ErrInternal, "amount: unsupported scan source %T", value)
	}
	parsed, err := Parse(decimal)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
