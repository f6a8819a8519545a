package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/compositor"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func solidClip(c color.RGBA, d mediatime.Time) *clip.Clip {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return clip.New(resource.NewImageResource(img, d))
}

type stubProber struct{ result *resource.ProbeResult }

func (p stubProber) Probe(context.Context, string) (*resource.ProbeResult, error) {
	return p.result, nil
}

func audioClip(t *testing.T, path string, seconds int) *clip.Clip {
	t.Helper()
	result := &resource.ProbeResult{
		Format:  resource.ProbeFormat{Duration: fmt.Sprintf("%d", seconds)},
		Streams: []resource.ProbeStream{{Index: 0, CodecType: "audio"}},
	}
	res := resource.NewMediaResource(path, resource.WithProber(stubProber{result}))
	status, err := res.Prepare(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	require.True(t, status.IsAvailable())
	return clip.New(res)
}

func redBlue(t *testing.T) *composition.Result {
	t.Helper()
	tl := timeline.New(solidClip(red, mediatime.Seconds(1)), solidClip(blue, mediatime.Seconds(1)))
	tl.Transitions = timeline.DefaultTransitionProvider{
		Transition: timeline.Transition{Effect: effects.Fade, Duration: mediatime.Milliseconds(500)},
	}
	res, err := composition.Compose(tl, composition.NewMemorySink(), nil)
	require.NoError(t, err)
	return res
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		total mediatime.Time
		fd    mediatime.Time
		want  int
	}{
		{mediatime.Milliseconds(1500), mediatime.New(1, 30), 45},
		{mediatime.Seconds(1), mediatime.New(1, 3), 3},
		{mediatime.Milliseconds(1010), mediatime.New(1, 3), 4},
		{mediatime.Seconds(1), mediatime.Zero, 0},
	}
	for _, tt := range tests {
		e := &Exporter{Composition: &composition.Result{Duration: tt.total}, FrameDuration: tt.fd}
		assert.Equal(t, tt.want, e.FrameCount(), "%s / %s", tt.total, tt.fd)
	}
}

func TestRunWithCompositor(t *testing.T) {
	comp := compositor.New(compositor.RenderContext{Size: image.Pt(4, 4)})
	defer comp.Close()

	w := &MemoryWriter{}
	var lastDone, lastTotal int
	e := &Exporter{
		Composition:   redBlue(t),
		Renderer:      comp,
		Writer:        w,
		FrameDuration: mediatime.New(1, 10),
		Workers:       4,
		Progress:      func(done, total int) { lastDone, lastTotal = done, total },
	}
	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 15, stats.Frames)
	require.Len(t, w.Frames, 15)
	for i, idx := range w.Indexes {
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, 15, lastDone)
	assert.Equal(t, 15, lastTotal)

	assert.Equal(t, red, w.Frames[0].RGBAAt(1, 1))
	assert.Equal(t, red, w.Frames[5].RGBAAt(1, 1))
	mid := w.Frames[7].RGBAAt(1, 1)
	assert.InDelta(t, 153, int(mid.R), 2)
	assert.InDelta(t, 102, int(mid.B), 2)
	assert.Equal(t, blue, w.Frames[14].RGBAAt(1, 1))
}

var errBoom = errors.New("boom")

type fakeRenderer struct {
	fd        mediatime.Time
	failAt    int
	released  atomic.Int32
	cancelled atomic.Int32
}

func (r *fakeRenderer) Render(ctx context.Context, t mediatime.Time, _ *composition.Result) (*image.RGBA, error) {
	i := int(t.Ratio(r.fd) + 0.5)
	// Later frames finish first to exercise reordering.
	time.Sleep(time.Duration(20-i%20) * 100 * time.Microsecond)
	if i == r.failAt {
		return nil, errBoom
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[0] = uint8(i)
	return img, ctx.Err()
}

func (r *fakeRenderer) ReleaseFrame(*image.RGBA) {
	r.released.Add(1)
}

func (r *fakeRenderer) CancelAllPending() {
	r.cancelled.Add(1)
}

var _ FrameRenderer = (*compositor.Compositor)(nil)

func TestRunKeepsOrder(t *testing.T) {
	fd := mediatime.New(1, 25)
	r := &fakeRenderer{fd: fd, failAt: -1}
	w := &MemoryWriter{}
	e := &Exporter{
		Composition:   &composition.Result{Duration: mediatime.Seconds(2)},
		Renderer:      r,
		Writer:        w,
		FrameDuration: fd,
		Workers:       8,
	}
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, w.Frames, 50)
	for i, f := range w.Frames {
		assert.EqualValues(t, i, f.Pix[0])
	}
	assert.EqualValues(t, 50, r.released.Load())
}

func TestRunAbortsOnFrameError(t *testing.T) {
	fd := mediatime.New(1, 25)
	w := &MemoryWriter{}
	r := &fakeRenderer{fd: fd, failAt: 5}
	e := &Exporter{
		Composition:   &composition.Result{Duration: mediatime.Seconds(2)},
		Renderer:      r,
		Writer:        w,
		FrameDuration: fd,
		Workers:       2,
	}
	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "frame 5")
	assert.LessOrEqual(t, len(w.Frames), 5)
	assert.GreaterOrEqual(t, r.cancelled.Load(), int32(1))
}

func TestRunCancelsQueuedFramesOnAbort(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := solidClip(red, mediatime.Seconds(2))
	c.PostProcessing = clip.ProcessingFunc(func(src image.Image, fc clip.FrameContext) (image.Image, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return clip.DefaultProcessing().Process(src, fc)
	})
	res, err := composition.Compose(timeline.New(c), composition.NewMemorySink(), nil)
	require.NoError(t, err)

	comp := compositor.New(compositor.RenderContext{Size: image.Pt(4, 4)})
	defer comp.Close()

	const workers = 8
	e := &Exporter{
		Composition:   res,
		Renderer:      comp,
		Writer:        &MemoryWriter{},
		FrameDuration: mediatime.New(1, 10),
		Workers:       workers,
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx)
		errc <- err
	}()

	<-entered
	require.Eventually(t, func() bool { return comp.Pending() == workers-1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		s := comp.Stats()
		return s.Finished+s.Cancelled == workers
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, compositor.Stats{Finished: 1, Cancelled: workers - 1}, comp.Stats())

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, comp.Stats().Finished)
}

func TestRunEmpty(t *testing.T) {
	e := &Exporter{Composition: &composition.Result{}, FrameDuration: mediatime.New(1, 30)}
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyComposition)
}

func TestFFmpegArgs(t *testing.T) {
	w := &FFmpegWriter{opts: FFmpegOptions{
		Output:        "out.mp4",
		Size:          image.Pt(1280, 720),
		FrameDuration: mediatime.New(1, 30),
		Duration:      mediatime.Milliseconds(13000),
		Quality:       23,
		Audio: []AudioInput{
			{Path: "music.m4a", Source: mediatime.NewRange(mediatime.Zero, mediatime.Seconds(4)), At: mediatime.Seconds(4)},
		},
	}}
	args := strings.Join(w.Args(), " ")
	assert.Contains(t, args, "-f rawvideo -pixel_format rgba -video_size 1280x720 -framerate 30/1 -i -")
	assert.Contains(t, args, "-ss 0.000 -t 4.000 -i music.m4a")
	assert.Contains(t, args, "-filter_complex [1:a]adelay=4000:all=1[a0];[a0]amix=inputs=1:duration=longest:normalize=0[aout]")
	assert.Contains(t, args, "-t 13.000")
	assert.True(t, strings.HasSuffix(args, "-c:v libx264 -pix_fmt yuv420p -crf 23 -preset medium out.mp4"), args)
}

func TestQualityArgs(t *testing.T) {
	assert.Equal(t, []string{"-b:v", "7500k"}, qualityArgs("h264_videotoolbox", 75))
	assert.Equal(t, []string{"-cq", "23"}, qualityArgs("h264_nvenc", 23))
	assert.Equal(t, []string{"-crf", "18", "-preset", "medium"}, qualityArgs("libx264", 18))
}

func TestWriteRawRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(1, 1, red)
	sub := img.SubImage(image.Rect(1, 1, 3, 2)).(*image.RGBA)

	var buf bytes.Buffer
	require.NoError(t, writeRawRGBA(&buf, sub))
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 0, 0}, buf.Bytes())
}

func TestAudioInputsFromBackgroundLoop(t *testing.T) {
	tl := timeline.New(solidClip(red, mediatime.Seconds(5)), solidClip(blue, mediatime.Seconds(5)))
	tl.BackgroundAudio = audioClip(t, "music.m4a", 4)
	sink := composition.NewMemorySink()
	_, err := composition.Compose(tl, sink, nil)
	require.NoError(t, err)

	inputs := AudioInputs(sink)
	require.Len(t, inputs, 3)
	assert.Equal(t, "music.m4a", inputs[0].Path)
	assert.True(t, inputs[1].At.Equal(mediatime.Seconds(4)))
	assert.True(t, inputs[2].Source.Duration.Equal(mediatime.Seconds(2)))
}
