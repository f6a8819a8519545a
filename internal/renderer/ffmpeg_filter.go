package renderer

import (
	"fmt"
	"strings"

	"github.com/ivlev/timeline2video/internal/effects"
)

// FilterClip is one input of an ffmpeg preview graph: the clip length and the
// transition into the next clip.
type FilterClip struct {
	Duration   float64
	Transition effects.Effect
	// Overlap is the transition duration into the next clip, zero for a cut.
	Overlap float64
}

// XfadeGraph builds an ffmpeg filter_complex chaining inputs [0:v]..[n-1:v]
// with xfade, using the same offsets the scheduler computes. It returns the
// graph and the label of the final video stream.
func XfadeGraph(clips []FilterClip) (string, string) {
	if len(clips) == 0 {
		return "", ""
	}
	if len(clips) == 1 {
		return "", "[0:v]"
	}

	var graph strings.Builder
	last := "[0:v]"
	offset := 0.0
	for i := 1; i < len(clips); i++ {
		prev := clips[i-1]
		offset += prev.Duration - prev.Overlap
		out := fmt.Sprintf("[v%d]", i)
		next := fmt.Sprintf("[%d:v]", i)

		if prev.Overlap <= 0 {
			fmt.Fprintf(&graph, "%s%sconcat=n=2:v=1:a=0%s;", last, next, out)
		} else {
			fmt.Fprintf(&graph, "%s%sxfade=%s:duration=%f:offset=%f%s;",
				last, next, xfadeTransition(prev.Transition), prev.Overlap, offset, out)
		}
		last = out
	}
	return strings.TrimSuffix(graph.String(), ";"), last
}

// xfadeTransition maps an effect to xfade options. P runs from 1 to 0 in
// custom expressions, so the cut switches to B at the midpoint.
func xfadeTransition(e effects.Effect) string {
	if e.IsNone() {
		return "transition=custom:expr='if(gte(P,0.5),A,B)'"
	}
	if !effects.Builtin.Contains(e) {
		return "transition=fade"
	}
	return "transition=" + e.Value
}
