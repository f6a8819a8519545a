package effects

import (
	"image"
	"image/draw"
	"math"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"
)

// frames normalises the blend inputs: both sources as RGBA covering dst.Rect
// and the tween clamped to [0, 1].
func frames(dst *image.RGBA, fg, bg image.Image, tween float64) (*image.RGBA, *image.RGBA, float64, error) {
	if dst == nil || dst.Rect.Empty() {
		return nil, nil, 0, merry.Wrap(ErrFrameMismatch, merry.AppendMessage("empty destination"))
	}
	if fg == nil || bg == nil {
		return nil, nil, 0, merry.Wrap(ErrFrameMismatch, merry.AppendMessage("missing source frame"))
	}
	return toRGBA(fg, dst.Rect), toRGBA(bg, dst.Rect), lo.Clamp(tween, 0, 1), nil
}

func toRGBA(img image.Image, r image.Rectangle) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect == r {
		return rgba
	}
	out := image.NewRGBA(r)
	draw.Draw(out, r, img, img.Bounds().Min, draw.Src)
	return out
}

func copyRow(dst, src *image.RGBA, x0, x1, y int) {
	copy(dst.Pix[dst.PixOffset(x0, y):dst.PixOffset(x1, y)], src.Pix[src.PixOffset(x0, y):src.PixOffset(x1, y)])
}

func copyPixel(dst, src *image.RGBA, dx, dy, sx, sy int) {
	d := dst.PixOffset(dx, dy)
	s := src.PixOffset(sx, sy)
	copy(dst.Pix[d:d+4], src.Pix[s:s+4])
}

// mix returns a*(255-w)/255 + b*w/255 rounded.
func mix(a, b uint8, w uint32) uint8 {
	return uint8((uint32(a)*(255-w) + uint32(b)*w + 127) / 255)
}

func weight(tween float64) uint32 {
	return uint32(math.Round(tween * 255))
}

func blendCut(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	src := f
	if t >= 0.5 {
		src = b
	}
	for y := dst.Rect.Min.Y; y < dst.Rect.Max.Y; y++ {
		copyRow(dst, src, dst.Rect.Min.X, dst.Rect.Max.X, y)
	}
	return nil
}

func crossfade(dst, f, b *image.RGBA, t float64) {
	w := weight(t)
	r := dst.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di, fi, bi := dst.PixOffset(r.Min.X, y), f.PixOffset(r.Min.X, y), b.PixOffset(r.Min.X, y)
		for n := 0; n < r.Dx()*4; n++ {
			dst.Pix[di+n] = mix(f.Pix[fi+n], b.Pix[bi+n], w)
		}
	}
}

func blendFade(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	crossfade(dst, f, b, t)
	return nil
}

// blendFadeBlack fades fg out to opaque black over the first half and bg in
// over the second.
func blendFadeBlack(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	src, k := f, t*2
	if t >= 0.5 {
		src, k = b, (1-t)*2
	}
	w := weight(k)
	r := dst.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di, si := dst.PixOffset(r.Min.X, y), src.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			p := si + x*4
			q := di + x*4
			dst.Pix[q+0] = mix(src.Pix[p+0], 0, w)
			dst.Pix[q+1] = mix(src.Pix[p+1], 0, w)
			dst.Pix[q+2] = mix(src.Pix[p+2], 0, w)
			dst.Pix[q+3] = mix(src.Pix[p+3], 255, w)
		}
	}
	return nil
}

// noise is a stable per-pixel value in [0, 1).
func noise(x, y int) float64 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float64(h) / (1 << 32)
}

func blendDissolve(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	r := dst.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if noise(x, y) < t {
				copyPixel(dst, b, x, y, x, y)
			} else {
				copyPixel(dst, f, x, y, x, y)
			}
		}
	}
	return nil
}

// revealFunc reports whether the pixel at (x, y) of a w x h frame already shows bg.
type revealFunc func(x, y, w, h int, t float64) bool

func wipeLeft(x, _, w, _ int, t float64) bool  { return float64(x) >= float64(w)*(1-t) }
func wipeRight(x, _, w, _ int, t float64) bool { return float64(x) < float64(w)*t }
func wipeUp(_, y, _, h int, t float64) bool    { return float64(y) >= float64(h)*(1-t) }
func wipeDown(_, y, _, h int, t float64) bool  { return float64(y) < float64(h)*t }

func blendWipe(reveal revealFunc) BlendFunc {
	return func(dst *image.RGBA, fg, bg image.Image, tween float64) error {
		f, b, t, err := frames(dst, fg, bg, tween)
		if err != nil {
			return err
		}
		r := dst.Rect
		w, h := r.Dx(), r.Dy()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				src := f
				if reveal(x, y, w, h, t) {
					src = b
				}
				copyPixel(dst, src, r.Min.X+x, r.Min.Y+y, r.Min.X+x, r.Min.Y+y)
			}
		}
		return nil
	}
}

// blendSlide pushes fg out while bg follows it in, leftwards or upwards.
func blendSlide(horizontal bool) BlendFunc {
	return func(dst *image.RGBA, fg, bg image.Image, tween float64) error {
		f, b, t, err := frames(dst, fg, bg, tween)
		if err != nil {
			return err
		}
		r := dst.Rect
		w, h := r.Dx(), r.Dy()
		extent := h
		if horizontal {
			extent = w
		}
		off := int(math.Round(float64(extent) * t))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sx, sy := x, y
				var pos *int
				if horizontal {
					sx += off
					pos = &sx
				} else {
					sy += off
					pos = &sy
				}
				src := f
				if *pos >= extent {
					*pos -= extent
					src = b
				}
				copyPixel(dst, src, r.Min.X+x, r.Min.Y+y, r.Min.X+sx, r.Min.Y+sy)
			}
		}
		return nil
	}
}

// blendCircleOpen reveals bg through a circle growing from the centre.
func blendCircleOpen(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	r := dst.Rect
	cx, cy := float64(r.Dx())/2, float64(r.Dy())/2
	radius := t * math.Hypot(cx, cy)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			src := f
			if math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) < radius {
				src = b
			}
			copyPixel(dst, src, r.Min.X+x, r.Min.Y+y, r.Min.X+x, r.Min.Y+y)
		}
	}
	return nil
}

// blendPixelize crossfades while the block size peaks at the midpoint.
func blendPixelize(dst *image.RGBA, fg, bg image.Image, tween float64) error {
	f, b, t, err := frames(dst, fg, bg, tween)
	if err != nil {
		return err
	}
	crossfade(dst, f, b, t)

	r := dst.Rect
	maxBlock := lo.Max([]int{1, lo.Min([]int{r.Dx(), r.Dy()}) / 20})
	block := 1 + int(math.Min(t, 1-t)*2*float64(maxBlock))
	if block <= 1 {
		return nil
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		oy := r.Min.Y + (y-r.Min.Y)/block*block
		for x := r.Min.X; x < r.Max.X; x++ {
			ox := r.Min.X + (x-r.Min.X)/block*block
			if ox != x || oy != y {
				copyPixel(dst, dst, x, y, ox, oy)
			}
		}
	}
	return nil
}
