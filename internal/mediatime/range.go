package mediatime

import "fmt"

// Range is the half-open interval [Start, Start+Duration).
type Range struct {
	Start    Time
	Duration Time
}

// NewRange returns the range starting at start lasting duration.
func NewRange(start, duration Time) Range {
	return Range{Start: start, Duration: duration}
}

// Span returns the range [start, end).
func Span(start, end Time) Range {
	return Range{Start: start, Duration: end.Sub(start)}
}

// End returns the exclusive end of r.
func (r Range) End() Time {
	return r.Start.Add(r.Duration)
}

// IsEmpty reports whether r has no positive duration.
func (r Range) IsEmpty() bool {
	return r.Duration.Sign() <= 0
}

// Contains reports whether t lies in [Start, End).
func (r Range) Contains(t Time) bool {
	return !t.Before(r.Start) && t.Before(r.End())
}

// ContainsRange reports whether o lies entirely within r.
func (r Range) ContainsRange(o Range) bool {
	return !o.Start.Before(r.Start) && !o.End().After(r.End())
}

// Intersect returns the overlap of r and o. The result is empty when they do not overlap.
func (r Range) Intersect(o Range) Range {
	start := Max(r.Start, o.Start)
	end := Min(r.End(), o.End())
	if !start.Before(end) {
		return Range{Start: start, Duration: Zero}
	}
	return Span(start, end)
}

// Fraction returns how far t has progressed through r, unclamped.
// An empty range yields 0.
func (r Range) Fraction(t Time) float64 {
	if r.IsEmpty() {
		return 0
	}
	return t.Sub(r.Start).Ratio(r.Duration)
}

// Equal reports whether both ranges cover the same instants.
func (r Range) Equal(o Range) bool {
	return r.Start.Equal(o.Start) && r.Duration.Equal(o.Duration)
}

// Key is a stable textual identifier for r, suitable as a map key
// across ranges built with different timescales.
func (r Range) Key() string {
	return fmt.Sprintf("{%.3f, %.3f}", r.Start.Seconds(), r.Duration.Seconds())
}

func (r Range) String() string {
	return fmt.Sprintf("start: %.2fs, duration: %.2fs", r.Start.Seconds(), r.Duration.Seconds())
}

// Placement pairs a source range with the timeline time it is written at.
type Placement struct {
	At    Time
	Range Range
}

// LoopRanges repeats src back to back starting at at until the timeline reaches
// until. The final repetition is truncated so the last placement ends exactly at until.
func LoopRanges(src Range, at, until Time) []Placement {
	if src.IsEmpty() {
		return nil
	}
	var out []Placement
	for t := at; t.Before(until); {
		d := Min(until.Sub(t), src.Duration)
		out = append(out, Placement{At: t, Range: Range{Start: src.Start, Duration: d}})
		t = t.Add(d)
	}
	return out
}
