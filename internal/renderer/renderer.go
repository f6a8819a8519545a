// Package renderer owns the transition effect that is active on one compositor.
package renderer

import (
	"image"

	"github.com/ivlev/timeline2video/internal/effects"
)

// TransitionRenderer blends two frames with the effect it currently holds.
// It is not safe for concurrent use; the compositor drives it from its worker.
type TransitionRenderer struct {
	effect effects.Effect
	blend  effects.BlendFunc
	easing Easing
	swaps  int
}

// New returns a renderer holding the hard cut with linear progress.
func New(easing Easing) *TransitionRenderer {
	if easing == nil {
		easing = Linear
	}
	blend, _ := effects.BlendFor(effects.None)
	return &TransitionRenderer{effect: effects.None, blend: blend, easing: easing}
}

// Use makes e the active effect. The blend function is only looked up again
// when the effect changes.
func (r *TransitionRenderer) Use(e effects.Effect) error {
	if e.Value == "" {
		e = effects.None
	}
	if e == r.effect && r.blend != nil {
		return nil
	}
	blend, err := effects.BlendFor(e)
	if err != nil {
		return err
	}
	r.effect, r.blend = e, blend
	r.swaps++
	return nil
}

// Effect is the active effect.
func (r *TransitionRenderer) Effect() effects.Effect {
	return r.effect
}

// Swaps counts how many times the active effect changed.
func (r *TransitionRenderer) Swaps() int {
	return r.swaps
}

// Render writes the frame at tween between fg and bg into dst.
func (r *TransitionRenderer) Render(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	return r.blend(dst, fg, bg, r.easing(tween))
}
