// Package effects holds the transition blend functions. Names follow the ffmpeg
// xfade vocabulary so a project can be previewed with plain ffmpeg as well.
package effects

import (
	"image"
	"sort"
	"strings"
	"sync"

	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"
)

var (
	ErrUnknownEffect = merry.Sentinel("unknown transition effect")
	ErrFrameMismatch = merry.Sentinel("blend frames do not match")
)

// Effect identifies a transition.
type Effect enum.Member[string]

var (
	None       = Effect{"none"}
	Fade       = Effect{"fade"}
	FadeBlack  = Effect{"fadeblack"}
	Dissolve   = Effect{"dissolve"}
	WipeLeft   = Effect{"wipeleft"}
	WipeRight  = Effect{"wiperight"}
	WipeUp     = Effect{"wipeup"}
	WipeDown   = Effect{"wipedown"}
	SlideLeft  = Effect{"slideleft"}
	SlideUp    = Effect{"slideup"}
	CircleOpen = Effect{"circleopen"}
	Pixelize   = Effect{"pixelize"}

	Builtin = enum.New(None, Fade, FadeBlack, Dissolve, WipeLeft, WipeRight, WipeUp, WipeDown,
		SlideLeft, SlideUp, CircleOpen, Pixelize)
)

func (e Effect) String() string {
	return e.Value
}

// IsNone reports whether e is the hard cut.
func (e Effect) IsNone() bool {
	return e == None || e.Value == ""
}

// BlendFunc writes the frame between fg (tween 0) and bg (tween 1) into dst.
// fg and bg are already placed in render-frame space and cover dst.Rect.
type BlendFunc func(dst *image.RGBA, fg, bg image.Image, tween float64) error

var (
	mu       sync.RWMutex
	registry = map[string]BlendFunc{
		None.Value:       blendCut,
		Fade.Value:       blendFade,
		FadeBlack.Value:  blendFadeBlack,
		Dissolve.Value:   blendDissolve,
		WipeLeft.Value:   blendWipe(wipeLeft),
		WipeRight.Value:  blendWipe(wipeRight),
		WipeUp.Value:     blendWipe(wipeUp),
		WipeDown.Value:   blendWipe(wipeDown),
		SlideLeft.Value:  blendSlide(true),
		SlideUp.Value:    blendSlide(false),
		CircleOpen.Value: blendCircleOpen,
		Pixelize.Value:   blendPixelize,
	}
)

// Register adds or replaces the blend function of an effect.
func Register(name string, fn BlendFunc) Effect {
	name = strings.ToLower(strings.TrimSpace(name))
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
	return Effect{name}
}

// Lookup resolves an effect by name. The empty name is the hard cut.
func Lookup(name string) (Effect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	mu.RLock()
	defer mu.RUnlock()
	if _, ok := registry[name]; !ok {
		return Effect{}, merry.Wrap(ErrUnknownEffect, merry.AppendMessagef("%q", name))
	}
	return Effect{name}, nil
}

// BlendFor returns the blend function of e.
func BlendFor(e Effect) (BlendFunc, error) {
	name := e.Value
	if name == "" {
		name = None.Value
	}
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, merry.Wrap(ErrUnknownEffect, merry.AppendMessagef("%q", e.Value))
	}
	return fn, nil
}

// Names lists every registered effect, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
