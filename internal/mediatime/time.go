// Package mediatime provides exact rational media time and half-open time ranges.
//
// A Time is a Value counted in units of 1/Scale seconds. Arithmetic between
// times with different scales is carried out on the least common multiple of
// both scales, so no precision is lost when frame-based and millisecond-based
// durations are mixed on one timeline.
package mediatime

import (
	"fmt"
	"math"
)

// DefaultScale is the timescale used for values built from float seconds.
const DefaultScale int32 = 600

// Time is a rational point or duration on a media timeline.
// The zero value is a valid zero time.
type Time struct {
	Value int64
	Scale int32
}

// Zero is time zero.
var Zero = Time{Value: 0, Scale: 1}

// New returns value/scale seconds.
func New(value int64, scale int32) Time {
	if scale <= 0 {
		scale = 1
	}
	return Time{Value: value, Scale: scale}
}

// FromSeconds converts float seconds to a Time with the given scale,
// rounding to the nearest unit.
func FromSeconds(sec float64, scale int32) Time {
	if scale <= 0 {
		scale = DefaultScale
	}
	return Time{Value: int64(math.Round(sec * float64(scale))), Scale: scale}
}

// Seconds returns whole seconds as a Time.
func Seconds(sec int64) Time {
	return Time{Value: sec, Scale: 1}
}

// Milliseconds returns ms milliseconds as a Time.
func Milliseconds(ms int64) Time {
	return Time{Value: ms, Scale: 1000}
}

func (t Time) scale() int64 {
	if t.Scale <= 0 {
		return 1
	}
	return int64(t.Scale)
}

// Seconds returns t as float seconds.
func (t Time) Seconds() float64 {
	return float64(t.Value) / float64(t.scale())
}

// IsZero reports whether t equals zero.
func (t Time) IsZero() bool {
	return t.Value == 0
}

// Sign returns -1, 0 or 1.
func (t Time) Sign() int {
	switch {
	case t.Value < 0:
		return -1
	case t.Value > 0:
		return 1
	}
	return 0
}

// Add returns t+o.
func (t Time) Add(o Time) Time {
	a, b, s := common(t, o)
	return fromCommon(a+b, s, t, o)
}

// Sub returns t-o.
func (t Time) Sub(o Time) Time {
	a, b, s := common(t, o)
	return fromCommon(a-b, s, t, o)
}

// Compare returns -1 when t<o, 0 when equal and 1 when t>o.
func (t Time) Compare(o Time) int {
	a, b, _ := common(t, o)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Before reports t<o.
func (t Time) Before(o Time) bool { return t.Compare(o) < 0 }

// After reports t>o.
func (t Time) After(o Time) bool { return t.Compare(o) > 0 }

// Equal reports whether t and o denote the same instant regardless of scale.
func (t Time) Equal(o Time) bool { return t.Compare(o) == 0 }

// Ratio returns t/o as a float. It returns 0 when o is zero.
func (t Time) Ratio(o Time) float64 {
	a, b, _ := common(t, o)
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// ConvertScale returns t expressed in the given scale, rounding half away from zero.
func (t Time) ConvertScale(scale int32) Time {
	if scale <= 0 {
		scale = 1
	}
	return Time{Value: rescale(t.Value, t.scale(), int64(scale)), Scale: scale}
}

// rescale converts value/from to units of 1/to, rounding half away from zero.
func rescale(value, from, to int64) int64 {
	if from == to {
		return value
	}
	num := value * to
	q := num / from
	if r := num % from; r != 0 && 2*abs(r) >= from {
		if num < 0 {
			q--
		} else {
			q++
		}
	}
	return q
}

func (t Time) String() string {
	return fmt.Sprintf("%.3fs", t.Seconds())
}

// Min returns the earlier of a and b.
func Min(a, b Time) Time {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b Time) Time {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// common returns both values on the least common multiple of their scales.
func common(a, b Time) (int64, int64, int64) {
	as, bs := a.scale(), b.scale()
	if as == bs {
		return a.Value, b.Value, as
	}
	l := as / gcd(as, bs) * bs
	return a.Value * (l / as), b.Value * (l / bs), l
}

// fromCommon builds a Time from a result on a common scale. When the scale
// does not fit in int32 even after reducing the fraction, the value is
// rounded to the finer of the operand scales.
func fromCommon(value, scale int64, a, b Time) Time {
	if scale <= math.MaxInt32 {
		return Time{Value: value, Scale: int32(scale)}
	}
	if g := gcd(abs(value), scale); g > 1 {
		value, scale = value/g, scale/g
		if scale <= math.MaxInt32 {
			return Time{Value: value, Scale: int32(scale)}
		}
	}
	fine := max(a.scale(), b.scale())
	return Time{Value: rescale(value, scale, fine), Scale: int32(fine)}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
