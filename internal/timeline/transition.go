package timeline

import (
	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// Transition is the blend between two adjacent clips.
type Transition struct {
	Effect   effects.Effect
	Duration mediatime.Time
}

// TransitionProvider chooses the transition between clips index and index+1.
// Returning false means a plain cut.
type TransitionProvider interface {
	TransitionFor(index int, from, to *clip.Clip) (Transition, bool)
}

// ProviderFunc adapts a function to TransitionProvider.
type ProviderFunc func(index int, from, to *clip.Clip) (Transition, bool)

func (f ProviderFunc) TransitionFor(index int, from, to *clip.Clip) (Transition, bool) {
	return f(index, from, to)
}

// DefaultTransitionProvider uses the same transition at every boundary.
type DefaultTransitionProvider struct {
	Transition Transition
}

func (p DefaultTransitionProvider) TransitionFor(int, *clip.Clip, *clip.Clip) (Transition, bool) {
	return p.Transition, true
}

// TransitionList gives one transition per boundary. Boundaries past the end of
// the list are cuts.
type TransitionList []Transition

func (l TransitionList) TransitionFor(index int, _, _ *clip.Clip) (Transition, bool) {
	if index < 0 || index >= len(l) {
		return Transition{}, false
	}
	return l[index], true
}
