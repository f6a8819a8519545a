package clip

import (
	"image"
	"image/color"

	"github.com/orsinium-labs/enum"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// FrameContext describes the frame a source is being placed into.
type FrameContext struct {
	RenderSize image.Point
	// Time is the composition time of the requested frame.
	Time mediatime.Time
	// Rotation is the orientation recorded for the source track.
	Rotation media.Rotation
}

func (fc FrameContext) bounds() image.Rectangle {
	return image.Rectangle{Max: fc.RenderSize}
}

// VideoProcessing transforms a source frame. The result of the last step in a
// clip must cover the render frame.
type VideoProcessing interface {
	Process(src image.Image, fc FrameContext) (image.Image, error)
}

// ProcessingFunc adapts a function to VideoProcessing.
type ProcessingFunc func(src image.Image, fc FrameContext) (image.Image, error)

func (f ProcessingFunc) Process(src image.Image, fc FrameContext) (image.Image, error) {
	return f(src, fc)
}

type ContentMode enum.Member[string]

var (
	// ContentFit scales the source to fit inside the frame, keeping its aspect.
	ContentFit = ContentMode{"fit"}
	// ContentFill scales the source to cover the frame, cropping overflow.
	ContentFill = ContentMode{"fill"}
	// ContentCustom stretches the source into BasicProcessing.Frame.
	ContentCustom = ContentMode{"custom"}
	ContentModes  = enum.New(ContentFit, ContentFill, ContentCustom)
)

type BackgroundMode enum.Member[string]

var (
	BackgroundNone    = BackgroundMode{"none"}
	BackgroundColor   = BackgroundMode{"color"}
	BackgroundBlurred = BackgroundMode{"blurred"}
	BackgroundModes   = enum.New(BackgroundNone, BackgroundColor, BackgroundBlurred)
)

// blurFactor is how much the blurred background is shrunk before it is scaled back up.
const blurFactor = 16

// BasicProcessing corrects the orientation of a source frame, places it into
// the render frame and optionally paints a background behind it.
type BasicProcessing struct {
	ContentMode ContentMode
	// Frame is the target rectangle for ContentCustom. Empty means the whole render frame.
	Frame image.Rectangle
	// Transform is applied in render-frame space after placement. The zero
	// value is the identity.
	Transform f64.Aff3
	// Opacity in (0, 1) lets the background show through. Other values draw the source opaque.
	Opacity         float64
	Background      BackgroundMode
	BackgroundColor color.Color
	// Chain runs after the placement, in order.
	Chain []VideoProcessing
}

// DefaultProcessing fits the source into the frame over nothing.
func DefaultProcessing() *BasicProcessing {
	return &BasicProcessing{ContentMode: ContentFit, Background: BackgroundNone}
}

var identity = f64.Aff3{1, 0, 0, 0, 1, 0}

func (p *BasicProcessing) Process(src image.Image, fc FrameContext) (image.Image, error) {
	bounds := fc.bounds()
	if bounds.Empty() {
		bounds = rotatedSize(src.Bounds(), fc.Rotation)
		fc.RenderSize = bounds.Max
	}
	dst := image.NewRGBA(bounds)

	switch p.Background {
	case BackgroundColor:
		if p.BackgroundColor != nil {
			draw.Draw(dst, bounds, image.NewUniform(p.BackgroundColor), image.Point{}, draw.Src)
		}
	case BackgroundBlurred:
		p.drawBlurred(dst, src, fc)
	}

	m := p.placement(src.Bounds(), fc)
	if p.Opacity > 0 && p.Opacity < 1 {
		layer := image.NewRGBA(bounds)
		transform(layer, m, src)
		mask := image.NewUniform(color.Alpha{A: uint8(p.Opacity*255 + 0.5)})
		draw.DrawMask(dst, bounds, layer, bounds.Min, mask, image.Point{}, draw.Over)
	} else {
		transform(dst, m, src)
	}

	var out image.Image = dst
	for _, step := range p.Chain {
		next, err := step.Process(out, fc)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// placement maps source pixel coordinates into the render frame.
func (p *BasicProcessing) placement(sb image.Rectangle, fc FrameContext) f64.Aff3 {
	disp := rotatedSize(sb, fc.Rotation).Size()
	frame := fc.bounds()

	var sx, sy, ox, oy float64
	switch p.ContentMode {
	case ContentCustom:
		target := p.Frame
		if target.Empty() {
			target = frame
		}
		sx = float64(target.Dx()) / float64(disp.X)
		sy = float64(target.Dy()) / float64(disp.Y)
		ox, oy = float64(target.Min.X), float64(target.Min.Y)
	default:
		fx := float64(frame.Dx()) / float64(disp.X)
		fy := float64(frame.Dy()) / float64(disp.Y)
		s := min(fx, fy)
		if p.ContentMode == ContentFill {
			s = max(fx, fy)
		}
		sx, sy = s, s
		ox = (float64(frame.Dx()) - float64(disp.X)*s) / 2
		oy = (float64(frame.Dy()) - float64(disp.Y)*s) / 2
	}

	m := mul(f64.Aff3{sx, 0, ox, 0, sy, oy}, orientation(sb, fc.Rotation))
	if p.Transform != (f64.Aff3{}) {
		m = mul(p.Transform, m)
	}
	return m
}

// drawBlurred paints a filled, heavily softened copy of src.
func (p *BasicProcessing) drawBlurred(dst *image.RGBA, src image.Image, fc FrameContext) {
	fill := &BasicProcessing{ContentMode: ContentFill}
	b := dst.Bounds()
	small := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/blurFactor), max(1, b.Dy()/blurFactor)))
	full := image.NewRGBA(b)
	transform(full, fill.placement(src.Bounds(), fc), src)
	draw.ApproxBiLinear.Scale(small, small.Bounds(), full, b, draw.Src, nil)
	draw.BiLinear.Scale(dst, b, small, small.Bounds(), draw.Src, nil)
}

// orientation maps source pixels onto an upright image whose origin is (0, 0).
func orientation(sb image.Rectangle, r media.Rotation) f64.Aff3 {
	w, h := float64(sb.Dx()), float64(sb.Dy())
	var rot f64.Aff3
	switch r {
	case media.Rotate90:
		rot = f64.Aff3{0, -1, h, 1, 0, 0}
	case media.Rotate180:
		rot = f64.Aff3{-1, 0, w, 0, -1, h}
	case media.Rotate270:
		rot = f64.Aff3{0, 1, 0, -1, 0, w}
	default:
		rot = identity
	}
	return mul(rot, f64.Aff3{1, 0, -float64(sb.Min.X), 0, 1, -float64(sb.Min.Y)})
}

func rotatedSize(sb image.Rectangle, r media.Rotation) image.Rectangle {
	if r == media.Rotate90 || r == media.Rotate270 {
		return image.Rect(0, 0, sb.Dy(), sb.Dx())
	}
	return image.Rect(0, 0, sb.Dx(), sb.Dy())
}

// mul returns the transform applying b first, then a.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

// transform draws src over dst through m. Integer translations are copied
// exactly so an unscaled source comes out unmodified.
func transform(dst *image.RGBA, m f64.Aff3, src image.Image) {
	if m[0] == 1 && m[1] == 0 && m[3] == 0 && m[4] == 1 && m[2] == float64(int(m[2])) && m[5] == float64(int(m[5])) {
		sb := src.Bounds()
		// m already includes -sb.Min, so the destination origin is m's translation plus sb.Min.
		dp := image.Pt(int(m[2])+sb.Min.X, int(m[5])+sb.Min.Y)
		draw.Draw(dst, image.Rectangle{Min: dp, Max: dp.Add(sb.Size())}, src, sb.Min, draw.Over)
		return
	}
	draw.BiLinear.Transform(dst, m, src, src.Bounds(), draw.Over, nil)
}
