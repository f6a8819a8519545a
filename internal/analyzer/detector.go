// Package analyzer finds the regions of a still that carry content so page
// margins can be cropped before the still is placed into the frame.
package analyzer

import (
	"image"

	"github.com/ansel1/merry/v2"
)

var ErrUnknownDetector = merry.Sentinel("unknown detector")

// Block is a detected region of interest.
type Block struct {
	Rect       image.Rectangle
	Confidence float64
}

// Detector finds content blocks in an image. Rectangles are in the
// coordinates of the image passed in.
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// NewDetector returns the detector named by variant.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	default:
		return nil, merry.Wrap(ErrUnknownDetector, merry.AppendMessagef("%q", variant))
	}
}

// ContentBounds is the union of blocks grown by margin and clipped to within.
// Without blocks it is within.
func ContentBounds(blocks []Block, within image.Rectangle, margin int) image.Rectangle {
	var r image.Rectangle
	for _, b := range blocks {
		r = r.Union(b.Rect)
	}
	if r.Empty() {
		return within
	}
	r = r.Inset(-margin).Intersect(within)
	if r.Empty() {
		return within
	}
	return r
}
