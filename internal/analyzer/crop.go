package analyzer

import (
	"image"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"golang.org/x/image/draw"

	"github.com/ivlev/timeline2video/internal/clip"
)

// boundsCacheSize covers the scaled copies a still keeps per render size.
const boundsCacheSize = 4

// Crop trims a source frame to its content and hands the result to Next.
// Bounds are detected once per distinct source image.
type Crop struct {
	Detector Detector
	// Margin is kept around the content, in source pixels.
	Margin int
	Next   clip.VideoProcessing

	bounds *cache.Cache[image.Image, image.Rectangle]
}

// NewCrop returns a content crop in front of next.
func NewCrop(d Detector, margin int, next clip.VideoProcessing) *Crop {
	return &Crop{
		Detector: d,
		Margin:   margin,
		Next:     next,
		bounds:   cache.New(cache.AsLRU[image.Image, image.Rectangle](lru.WithCapacity(boundsCacheSize))),
	}
}

func (c *Crop) Process(src image.Image, fc clip.FrameContext) (image.Image, error) {
	r, ok := c.bounds.Get(src)
	if !ok {
		blocks, err := c.Detector.Detect(src)
		if err != nil {
			return nil, err
		}
		r = ContentBounds(blocks, src.Bounds(), c.Margin)
		c.bounds.Set(src, r)
	}
	return c.Next.Process(subImage(src, r), fc)
}

func subImage(src image.Image, r image.Rectangle) image.Image {
	if r == src.Bounds() {
		return src
	}
	if s, ok := src.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, src, r.Min, draw.Src)
	return dst
}
