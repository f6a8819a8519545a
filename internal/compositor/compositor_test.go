package compositor

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func sec(s int64) mediatime.Time { return mediatime.Seconds(s) }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func solidClip(c color.RGBA, d int64) *clip.Clip {
	return clip.New(resource.NewImageResource(solid(8, 8, c), sec(d)))
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c := New(RenderContext{Size: image.Pt(8, 8), FrameDuration: mediatime.New(1, 30)})
	t.Cleanup(c.Close)
	return c
}

func composeRedBlue(t *testing.T, effect effects.Effect) *composition.Result {
	t.Helper()
	tl := timeline.New(solidClip(red, 5), solidClip(blue, 5))
	tl.Transitions = timeline.DefaultTransitionProvider{
		Transition: timeline.Transition{Effect: effect, Duration: sec(1)},
	}
	res, err := composition.Compose(tl, composition.NewMemorySink(), nil)
	require.NoError(t, err)
	return res
}

func assertUniform(t *testing.T, want color.RGBA, img *image.RGBA) {
	t.Helper()
	require.NotNil(t, img)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestPassthrough(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)

	frame, err := c.Render(context.Background(), sec(1), res)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), frame.Rect)
	assertUniform(t, red, frame)
	c.ReleaseFrame(frame)

	frame, err = c.Render(context.Background(), sec(7), res)
	require.NoError(t, err)
	assertUniform(t, blue, frame)
	assert.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)
}

func TestTransitionProgress(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)

	frame, err := c.Render(context.Background(), sec(4), res)
	require.NoError(t, err)
	assertUniform(t, red, frame)

	frame, err = c.Render(context.Background(), mediatime.Milliseconds(4500), res)
	require.NoError(t, err)
	assertUniform(t, color.RGBA{R: 127, B: 128, A: 255}, frame)

	frame, err = c.Render(context.Background(), mediatime.Milliseconds(4999), res)
	require.NoError(t, err)
	assertUniform(t, blue, frame)
}

func TestHardCutTransition(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.None)

	frame, err := c.Render(context.Background(), mediatime.Milliseconds(4400), res)
	require.NoError(t, err)
	assertUniform(t, red, frame)

	frame, err = c.Render(context.Background(), mediatime.Milliseconds(4600), res)
	require.NoError(t, err)
	assertUniform(t, blue, frame)
}

func TestErrors(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)
	ctx := context.Background()

	_, err := c.Render(ctx, sec(20), res)
	assert.ErrorIs(t, err, ErrNoInstruction)

	instr, ok := res.InstructionAt(sec(1))
	require.True(t, ok)
	req := NewFrameRequest(sec(1), instr, nil)
	c.StartRequest(req)
	_, err = req.Wait(ctx)
	assert.ErrorIs(t, err, ErrSourceFrameUnavailable)

	bogus := *instr
	bogus.Layers = []composition.Layer{instr.Layers[0], instr.Layers[0]}
	bogus.Effect = effects.Effect{Value: "nope"}
	frame := solid(8, 8, red)
	req = NewFrameRequest(sec(1), &bogus, map[int32]image.Image{instr.Layers[0].TrackID: frame})
	c.StartRequest(req)
	_, err = req.Wait(ctx)
	assert.ErrorIs(t, err, ErrRenderFailure)

	assert.EqualValues(t, 3, c.Stats().Failed)
}

type gatedRequest struct {
	*FrameRequest
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (r *gatedRequest) SourceFrame(id int32) image.Image {
	r.once.Do(func() { close(r.entered) })
	<-r.gate
	return r.FrameRequest.SourceFrame(id)
}

func TestCancelAllPending(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	build := func(at mediatime.Time) *FrameRequest {
		req, err := c.NewRequest(ctx, at, res)
		require.NoError(t, err)
		return req
	}

	inFlight := &gatedRequest{
		FrameRequest: build(sec(1)),
		entered:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
	c.StartRequest(inFlight)
	<-inFlight.entered

	pending := []*FrameRequest{build(sec(2)), build(sec(3))}
	for _, r := range pending {
		c.StartRequest(r)
	}
	c.CancelAllPending()
	after := build(sec(6))
	c.StartRequest(after)
	close(inFlight.gate)

	frame, err := inFlight.Wait(ctx)
	require.NoError(t, err)
	assertUniform(t, red, frame)

	for _, r := range pending {
		_, err := r.Wait(ctx)
		assert.ErrorIs(t, err, ErrCancelled)
	}

	frame, err = after.Wait(ctx)
	require.NoError(t, err)
	assertUniform(t, blue, frame)

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Finished)
	assert.EqualValues(t, 2, stats.Cancelled)
}

func TestRenderContextChanged(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)

	c.RenderContextChanged(RenderContext{Size: image.Pt(4, 2), FrameDuration: mediatime.New(1, 25)})
	assert.Equal(t, image.Pt(4, 2), c.RenderContext().Size)

	frame, err := c.Render(context.Background(), sec(1), res)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), frame.Rect)
	// An 8x8 source fitted into 4x2 is pillarboxed on the background.
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(0, 0))
	assert.Equal(t, red, frame.RGBAAt(2, 1))
}

func TestRenderContextChangeKeepsInFlightSize(t *testing.T) {
	c := newTestCompositor(t)
	res := composeRedBlue(t, effects.Fade)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	old := c.RenderContext().Size
	req, err := c.NewRequest(ctx, sec(1), res)
	require.NoError(t, err)
	inFlight := &gatedRequest{FrameRequest: req, entered: make(chan struct{}), gate: make(chan struct{})}
	c.StartRequest(inFlight)
	<-inFlight.entered

	c.RenderContextChanged(RenderContext{Size: image.Pt(4, 2), FrameDuration: mediatime.New(1, 25)})
	close(inFlight.gate)

	frame, err := inFlight.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.Rectangle{Max: old}, frame.Rect)
	assertUniform(t, red, frame)

	frame, err = c.Render(ctx, sec(1), res)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), frame.Rect)
}

func TestClose(t *testing.T) {
	c := New(RenderContext{Size: image.Pt(8, 8)})
	c.Close()
	c.Close()

	req := NewFrameRequest(sec(0), nil, nil)
	c.StartRequest(req)
	_, err := req.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}
