package renderer

import "math"

// Easing reshapes a linear progress value in [0, 1].
type Easing func(t float64) float64

// Linear keeps the progress as-is.
func Linear(t float64) float64 {
	return t
}

// Lerp performs linear interpolation between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// EaseInOutCubic is slow at both ends of the transition and fast in the middle.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// EasingByName maps a project setting to an easing. Unknown names are linear.
func EasingByName(name string) Easing {
	switch name {
	case "ease", "ease-in-out", "cubic":
		return EaseInOutCubic
	default:
		return Linear
	}
}
