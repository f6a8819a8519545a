package resource

import (
	"fmt"
	"image"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"github.com/ansel1/merry/v2"
	"golang.org/x/image/draw"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// stillCacheSize bounds how many render sizes a still keeps pre-scaled copies for.
const stillCacheSize = 4

// still is a raster shown for a chosen duration. It exposes one synthetic video track
// and hands its raster to the compositor through Image.
type still struct {
	base
	img    image.Image
	scaled *cache.Cache[image.Point, image.Image]
}

func newStill(duration mediatime.Time) *still {
	s := &still{
		scaled: cache.New(cache.AsLRU[image.Point, image.Image](lru.WithCapacity(stillCacheSize))),
	}
	s.duration = duration
	s.selected = mediatime.NewRange(mediatime.Zero, duration)
	return s
}

func (s *still) setImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
	s.size = img.Bounds().Size()
}

// UpdateSelectedRange changes how long the still is shown. Stills have no
// intrinsic length, so the range start is ignored and the duration is taken as-is.
func (s *still) UpdateSelectedRange(r mediatime.Range) error {
	if r.IsEmpty() {
		return merry.Wrap(ErrEmptyRange, merry.AppendMessagef("range %s", r))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = r.Duration
	s.selected = mediatime.NewRange(mediatime.Zero, r.Duration)
	return nil
}

func (s *still) Tracks(kind media.Kind) []media.Track {
	if kind != media.KindVideo {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []media.Track{{
		Index:       0,
		StreamIndex: -1,
		Kind:        media.KindVideo,
		Codec:       "still",
		TimeRange:   mediatime.NewRange(mediatime.Zero, s.duration),
		NaturalSize: s.size,
	}}
}

func (s *still) TrackInfo(kind media.Kind, index int) (TrackInfo, error) {
	tracks := s.Tracks(kind)
	if index < 0 || index >= len(tracks) {
		return TrackInfo{}, merry.Wrap(ErrNoTrack, merry.AppendMessagef("%s track %d", kind, index))
	}
	selected := s.SelectedRange()
	scaleTo := selected.Duration
	return TrackInfo{Track: tracks[index], SelectedRange: selected, ScaleTo: &scaleTo}, nil
}

// Image returns the raster, downscaled so it is at most twice the render size.
// Upscaling is left to post-processing.
func (s *still) Image(_ mediatime.Time, renderSize image.Point) image.Image {
	s.mu.RLock()
	img := s.img
	s.mu.RUnlock()
	if img == nil {
		return nil
	}
	if renderSize.X <= 0 || renderSize.Y <= 0 {
		return img
	}
	if cached, ok := s.scaled.Get(renderSize); ok {
		return cached
	}

	limit := image.Pt(renderSize.X*2, renderSize.Y*2)
	b := img.Bounds()
	if b.Dx() <= limit.X && b.Dy() <= limit.Y {
		s.scaled.Set(renderSize, img)
		return img
	}

	w, h := fitSize(b.Size(), limit)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	s.scaled.Set(renderSize, dst)
	return dst
}

// fitSize scales src to fit inside limit while keeping its aspect ratio.
func fitSize(src, limit image.Point) (int, int) {
	if src.X == 0 || src.Y == 0 {
		return limit.X, limit.Y
	}
	sx := float64(limit.X) / float64(src.X)
	sy := float64(limit.Y) / float64(src.Y)
	scale := sx
	if sy < sx {
		scale = sy
	}
	w := int(float64(src.X) * scale)
	h := int(float64(src.Y) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func (s *still) String() string {
	return fmt.Sprintf("still %dx%d for %s", s.size.X, s.size.Y, s.duration)
}
