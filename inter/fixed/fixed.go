// Package fixed implements the deterministic fixed-point arithmetic core used
// by every consensus-critical calculation in the engine.
//
// A Fixed is a 64-bit signed integer scaled by 1e6 (micro precision). All
// operations are exact-integer and produce identical bits on every
// architecture, which is what allows two nodes to reach byte-identical
// scoring and reward decisions from identical inputs. There is deliberately
// no floating-point path here: the only permitted float conversions live in
// migrate.go and must never be reached from consensus code.
//
// Arithmetic comes in two flavors:
//   - checked (Add, Sub, Mul, Div): return ErrArithmeticOverflow or
//     ErrDivisionByZero instead of silently wrapping. Consensus must halt on
//     these rather than diverge.
//   - saturating (SatAdd, SatMul): clamp to the int64 range, used only where
//     the caller explicitly wants clamping semantics (e.g. score bounds).
package fixed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/zeebo/blake3"
)

// Scale is the fixed-point denominator: 1 unit = 1e-6.
const Scale = 1_000_000

var (
	// ErrArithmeticOverflow is returned when a checked operation would leave
	// the representable range. It is fatal to the operation; callers in the
	// consensus path must propagate it rather than substitute a value.
	ErrArithmeticOverflow = errors.New("fixed: arithmetic overflow")
	// ErrDivisionByZero is returned by Div and FromRatio for a zero divisor.
	ErrDivisionByZero = errors.New("fixed: division by zero")
)

// Fixed is a scaled 64-bit integer standing in for a fractional value.
// It is always owned by value; never share a *Fixed.
type Fixed int64

// Common constants.
const (
	Zero Fixed = 0
	One  Fixed = Scale
	Max  Fixed = math.MaxInt64
	Min  Fixed = math.MinInt64
)

// FromInt converts an integer to Fixed, saturating at the range bounds.
func FromInt(v int64) Fixed {
	if v > math.MaxInt64/Scale {
		return Max
	}
	if v < math.MinInt64/Scale {
		return Min
	}
	return Fixed(v * Scale)
}

// FromMicro wraps a raw micro-scaled value without conversion.
func FromMicro(raw int64) Fixed {
	return Fixed(raw)
}

// FromRatio builds the Fixed representation of num/den exactly
// (truncated toward zero at micro precision).
func FromRatio(num, den int64) (Fixed, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	return mulDiv(Fixed(num), Scale, Fixed(den))
}

// Micro returns the raw scaled representation.
func (f Fixed) Micro() int64 {
	return int64(f)
}

// Int truncates the fractional part.
func (f Fixed) Int() int64 {
	return int64(f) / Scale
}

// Add returns f+other, failing on overflow.
func (f Fixed) Add(other Fixed) (Fixed, error) {
	sum := f + other
	// Overflow iff both operands share a sign the sum does not.
	if (f > 0 && other > 0 && sum < 0) || (f < 0 && other < 0 && sum >= 0) {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub returns f-other, failing on overflow.
func (f Fixed) Sub(other Fixed) (Fixed, error) {
	diff := f - other
	if (f >= 0 && other < 0 && diff < 0) || (f < 0 && other > 0 && diff >= 0) {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// Mul returns f*other at micro precision, failing on overflow. The
// intermediate product is computed in 128 bits so that no precision is lost
// before the rescale.
func (f Fixed) Mul(other Fixed) (Fixed, error) {
	return mulDiv(f, other, Scale)
}

// Div returns f/other at micro precision, failing on overflow or a zero
// divisor.
func (f Fixed) Div(other Fixed) (Fixed, error) {
	if other == 0 {
		return 0, ErrDivisionByZero
	}
	return mulDiv(f, Scale, other)
}

// SatAdd returns f+other clamped to the representable range.
func (f Fixed) SatAdd(other Fixed) Fixed {
	sum, err := f.Add(other)
	if err == nil {
		return sum
	}
	if f > 0 {
		return Max
	}
	return Min
}

// SatMul returns f*other clamped to the representable range.
func (f Fixed) SatMul(other Fixed) Fixed {
	p, err := f.Mul(other)
	if err == nil {
		return p
	}
	if (f < 0) == (other < 0) {
		return Max
	}
	return Min
}

// Cmp returns -1, 0 or +1.
func (f Fixed) Cmp(other Fixed) int {
	switch {
	case f < other:
		return -1
	case f > other:
		return 1
	default:
		return 0
	}
}

// Abs returns the absolute value. Min maps to Max rather than wrapping.
func (f Fixed) Abs() Fixed {
	if f == Min {
		return Max
	}
	if f < 0 {
		return -f
	}
	return f
}

// Clamp bounds f into [lo, hi].
func (f Fixed) Clamp(lo, hi Fixed) Fixed {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// String renders the value with six decimal places, e.g. "1.500000".
func (f Fixed) String() string {
	sign := ""
	v := int64(f)
	if v < 0 {
		sign = "-"
		if v == math.MinInt64 {
			// Avoid negating MinInt64; split off the last digit manually.
			return fmt.Sprintf("-%d.%06d", uint64(1)<<63/Scale, uint64(1)<<63%Scale)
		}
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/Scale, v%Scale)
}

// Bytes returns the canonical little-endian encoding of the raw value.
// This is the exact byte form fed to the hash functions, so it must never
// change.
func (f Fixed) Bytes() []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(int64(f)))
	return b[:]
}

// Hash returns the BLAKE3 digest of the canonical encoding.
func (f Fixed) Hash() hash.Hash {
	return hash.Hash(blake3.Sum256(f.Bytes()))
}

// HashSlice returns the BLAKE3 digest of the concatenated canonical
// encodings, in slice order.
func HashSlice(vals []Fixed) hash.Hash {
	h := blake3.New()
	for _, v := range vals {
		_, _ = h.Write(v.Bytes())
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return hash.Hash(out)
}

// mulDiv computes a*b/c with a 128-bit intermediate, truncating toward zero.
func mulDiv(a, b, c Fixed) (Fixed, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	neg := false
	ua := absU64(int64(a), &neg)
	ub := absU64(int64(b), &neg)
	uc := absU64(int64(c), &neg)

	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		// Quotient would not fit in 64 bits.
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, uc)
	if neg {
		if q > 1<<63 {
			return 0, ErrArithmeticOverflow
		}
		if q == 1<<63 {
			return Min, nil
		}
		return Fixed(-int64(q)), nil
	}
	if q > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}
	return Fixed(q), nil
}

// absU64 returns |v| as uint64 and flips *neg when v is negative.
func absU64(v int64, neg *bool) uint64 {
	if v < 0 {
		*neg = !*neg
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}
