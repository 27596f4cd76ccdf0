package chainblock

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// Difficulty is stored as tenths of a unit (matching the schema's
// NUMERIC(3,1) column) so that arithmetic and equality comparisons are
// exact instead of float-fuzzy.
type Difficulty int32

// StartDifficulty is the genesis block's fixed difficulty.
const StartDifficulty Difficulty = 60 // 6.0

// NewDifficulty builds a Difficulty from a float, rounding to one decimal.
func NewDifficulty(f float64) Difficulty {
	return Difficulty(math.Round(f * 10))
}

// Float returns the difficulty as a float64 with one decimal of precision.
func (d Difficulty) Float() float64 { return float64(d) / 10 }

// String renders the difficulty with exactly one fractional digit, the
// same shape stored in the schema's NUMERIC(3,1) column.
func (d Difficulty) String() string { return fmt.Sprintf("%.1f", d.Float()) }

// Whole returns ⌊difficulty⌋, the hex-prefix length.
func (d Difficulty) Whole() int { return int(d) / 10 }

// Frac returns the fractional part f = difficulty − ⌊difficulty⌋.
func (d Difficulty) Frac() float64 {
	return float64(int(d)%10) / 10
}

const hexAlphabet = "0123456789abcdef"

// AllowedCharCount returns count = ⌈16·(1−f)⌉, the number of leading
// characters of the hex alphabet allowed at position d of a candidate hash.
func (d Difficulty) AllowedCharCount() int {
	f := d.Frac()
	if f == 0 {
		return 16
	}
	return int(math.Ceil(16 * (1 - f)))
}

// SatisfiesPredicate implements the fractional-difficulty prefix predicate:
// hash must start with the last d hex chars of prevHash, and the
// character at position d must fall within the first `count` hex digits.
func SatisfiesPredicate(hash string, prevHash string, d Difficulty) bool {
	w := d.Whole()
	if w > len(prevHash) || w >= len(hash) {
		return false
	}
	tail := prevHash[len(prevHash)-w:]
	if !strings.HasPrefix(hash, tail) {
		return false
	}
	ch := hash[w]
	idx := strings.IndexByte(hexAlphabet, ch)
	if idx < 0 {
		return false
	}
	return idx < d.AllowedCharCount()
}

// AdjustmentInterval is the number of blocks between difficulty
// recomputations.
const AdjustmentInterval = 512

// TargetBlockTimeSeconds is the authoritative target block time: 180s.
const TargetBlockTimeSeconds = 180

// TargetWindowSeconds is the target elapsed time for one adjustment
// window of AdjustmentInterval blocks.
const TargetWindowSeconds = AdjustmentInterval * TargetBlockTimeSeconds

// NextDifficulty computes the new difficulty for the block that starts a
// fresh adjustment window, given the previous difficulty and the actual
// elapsed time (seconds) of the last AdjustmentInterval blocks. The result
// is clamped to change by at most one integer unit per adjustment.
func NextDifficulty(prev Difficulty, actualWindowSeconds int64) Difficulty {
	if actualWindowSeconds <= 0 {
		actualWindowSeconds = 1
	}
	// Blocks that came in faster than the target window (actual < target)
	// should raise the difficulty, and slower windows should lower it, so
	// the delta is log2(target/actual), not log2(actual/target).
	ratio := math.Log2(float64(TargetWindowSeconds) / float64(actualWindowSeconds))
	delta := NewDifficulty(ratio)
	next := prev + delta
	maxStep := Difficulty(10) // one integer unit, in tenths
	if next > prev+maxStep {
		next = prev + maxStep
	} else if next < prev-maxStep {
		next = prev - maxStep
	}
	if next < 10 {
		next = 10 // difficulty never drops below 1.0
	}
	return next
}

// Value implements driver.Valuer so a Difficulty writes into the schema's
// NUMERIC(3,1) blocks.difficulty column as a one-decimal string instead of
// its raw tenths integer.
func (d Difficulty) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner, parsing whatever shape the postgres driver
// returns for a NUMERIC column back into tenths.
func (d *Difficulty) Scan(value interface{}) error {
	if value == nil {
		*d = 0
		return nil
	}
	var f float64
	switch v := value.(type) {
	case []byte:
		parsed, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return errs.New(errs.ErrInternal, "difficulty: malformed numeric %q", string(v))
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.New(errs.ErrInternal, "difficulty: malformed numeric %q", v)
		}
		f = parsed
	case float64:
		f = v
	default:
		return errs.New(errs.ErrInternal, "difficulty: unsupported scan source %T", value)
	}
	*d = NewDifficulty(f)
	return nil
}
