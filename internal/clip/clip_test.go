package clip

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestClipTimingAndTracks(t *testing.T) {
	res := resource.NewImageResource(solid(4, 4, red), mediatime.Seconds(5))
	c := New(res)

	assert.NotEmpty(t, c.ID)
	assert.NotEqual(t, c.ID, New(res).ID)
	assert.True(t, c.IsReady())
	assert.True(t, c.Duration().Equal(mediatime.Seconds(5)))
	assert.True(t, c.TimeRange().Start.IsZero())

	c.SetStartTime(mediatime.Seconds(4))
	assert.True(t, c.TimeRange().End().Equal(mediatime.Seconds(9)))

	assert.Equal(t, 1, c.NumTracks(media.KindVideo))
	assert.Equal(t, 0, c.NumTracks(media.KindAudio))
	c.VideoEnabled = false
	assert.Equal(t, 0, c.NumTracks(media.KindVideo))

	status, err := c.Prepare(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsAvailable())
}

func TestClipNotReadyUntilPrepared(t *testing.T) {
	c := New(resource.NewImageFileResource("missing.png", mediatime.Seconds(1)))
	assert.False(t, c.IsReady())
}

func TestDefaultProcessingIsIdentityForRenderSizedFrames(t *testing.T) {
	src := solid(8, 6, red)
	src.SetRGBA(1, 2, green)

	c := New(resource.NewImageResource(src, mediatime.Seconds(1)))
	out, err := c.Process(src, FrameContext{RenderSize: image.Pt(8, 6)})
	require.NoError(t, err)

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, src.Pix, rgba.Pix)
}

func TestFitLetterboxesAndFillCovers(t *testing.T) {
	src := solid(20, 10, red)
	fc := FrameContext{RenderSize: image.Pt(20, 20)}

	fit := &BasicProcessing{ContentMode: ContentFit, Background: BackgroundColor, BackgroundColor: white}
	out, err := fit.Process(src, fc)
	require.NoError(t, err)
	img := out.(*image.RGBA)
	assert.Equal(t, white, img.RGBAAt(10, 1), "bar above the fitted source")
	assert.Equal(t, red, img.RGBAAt(10, 10))
	assert.Equal(t, white, img.RGBAAt(10, 18), "bar below the fitted source")

	fill := &BasicProcessing{ContentMode: ContentFill, Background: BackgroundColor, BackgroundColor: white}
	out, err = fill.Process(src, fc)
	require.NoError(t, err)
	img = out.(*image.RGBA)
	assert.Equal(t, red, img.RGBAAt(10, 1))
	assert.Equal(t, red, img.RGBAAt(10, 18))
}

func TestCustomFrame(t *testing.T) {
	src := solid(2, 2, red)
	p := &BasicProcessing{ContentMode: ContentCustom, Frame: image.Rect(4, 4, 8, 8)}
	out, err := p.Process(src, FrameContext{RenderSize: image.Pt(10, 10)})
	require.NoError(t, err)
	img := out.(*image.RGBA)
	assert.Equal(t, red, img.RGBAAt(5, 5))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(1, 1))
}

func TestRotationCorrection(t *testing.T) {
	// A 4x2 source with a green top-left pixel.
	src := solid(4, 2, red)
	src.SetRGBA(0, 0, green)

	p := &BasicProcessing{ContentMode: ContentFit}
	out, err := p.Process(src, FrameContext{RenderSize: image.Pt(2, 4), Rotation: media.Rotate90})
	require.NoError(t, err)
	img := out.(*image.RGBA)
	// Rotated clockwise, the top-left corner moves to the top-right.
	assert.Equal(t, green, img.RGBAAt(1, 0))
	assert.Equal(t, red, img.RGBAAt(0, 0))

	out, err = p.Process(src, FrameContext{RenderSize: image.Pt(4, 2), Rotation: media.Rotate180})
	require.NoError(t, err)
	assert.Equal(t, green, out.(*image.RGBA).RGBAAt(3, 1))
}

func TestTransformAndOpacity(t *testing.T) {
	src := solid(4, 4, red)
	p := &BasicProcessing{
		ContentMode: ContentFit,
		Transform:   f64.Aff3{1, 0, 2, 0, 1, 0},
		Opacity:     0.5,
		Background:  BackgroundColor, BackgroundColor: white,
	}
	out, err := p.Process(src, FrameContext{RenderSize: image.Pt(8, 4)})
	require.NoError(t, err)
	img := out.(*image.RGBA)
	assert.Equal(t, white, img.RGBAAt(1, 1))
	px := img.RGBAAt(5, 1)
	assert.Equal(t, uint8(255), px.R)
	assert.InDelta(t, 127, int(px.G), 2)
}

func TestChainRunsInOrder(t *testing.T) {
	var order []string
	step := func(name string) VideoProcessing {
		return ProcessingFunc(func(src image.Image, _ FrameContext) (image.Image, error) {
			order = append(order, name)
			return src, nil
		})
	}
	p := DefaultProcessing()
	p.Chain = []VideoProcessing{step("a"), step("b")}
	_, err := p.Process(solid(2, 2, red), FrameContext{RenderSize: image.Pt(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBlurredBackgroundCoversFrame(t *testing.T) {
	p := &BasicProcessing{ContentMode: ContentFit, Background: BackgroundBlurred}
	out, err := p.Process(solid(32, 8, red), FrameContext{RenderSize: image.Pt(32, 32)})
	require.NoError(t, err)
	img := out.(*image.RGBA)
	assert.Equal(t, uint8(255), img.RGBAAt(16, 1).A)
	assert.Greater(t, img.RGBAAt(16, 1).R, uint8(200))
}
