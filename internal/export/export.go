// Package export walks the output timestamps of a composition, renders them on
// a compositor and writes the frames in order.
package export

import (
	"context"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/ansel1/merry/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

var ErrEmptyComposition = merry.Sentinel("composition has no frames")

// FrameRenderer produces output frames. *compositor.Compositor implements it.
type FrameRenderer interface {
	Render(ctx context.Context, t mediatime.Time, comp *composition.Result) (*image.RGBA, error)
	ReleaseFrame(frame *image.RGBA)
	// CancelAllPending drops frames queued but not yet started.
	CancelAllPending()
}

// FrameWriter consumes frames in presentation order. Frames are recycled after
// WriteFrame returns and must not be retained.
type FrameWriter interface {
	WriteFrame(ctx context.Context, index int, frame *image.RGBA) error
}

// Stats summarizes a finished export.
type Stats struct {
	Frames  int
	Elapsed time.Duration
}

// FPS is the render throughput.
func (s Stats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// Exporter renders every frame of a composition.
type Exporter struct {
	Composition   *composition.Result
	Renderer      FrameRenderer
	Writer        FrameWriter
	FrameDuration mediatime.Time
	// Workers bounds the frames rendered or waiting to be written at once.
	Workers  int
	Logger   *slog.Logger
	Progress func(done, total int)
}

// FrameCount is the number of frames needed to cover the composition.
func (e *Exporter) FrameCount() int {
	if e.Composition == nil || e.FrameDuration.Sign() <= 0 {
		return 0
	}
	return int(math.Ceil(e.Composition.Duration.Ratio(e.FrameDuration) - 1e-9))
}

// FrameTime is the composition time of frame i.
func (e *Exporter) FrameTime(i int) mediatime.Time {
	return mediatime.New(e.FrameDuration.Value*int64(i), e.FrameDuration.Scale)
}

// Run renders and writes all frames. The first failing frame aborts the export.
func (e *Exporter) Run(ctx context.Context) (Stats, error) {
	logger := logging.WithComponent(logging.OrDiscard(e.Logger), "export")
	n := e.FrameCount()
	if n == 0 {
		return Stats{}, merry.Wrap(ErrEmptyComposition)
	}
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	slots := make([]chan *image.RGBA, n)
	for i := range slots {
		slots[i] = make(chan *image.RGBA, 1)
	}
	inFlight := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case inFlight <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			g.Go(func() error {
				t := e.FrameTime(i)
				frame, err := e.Renderer.Render(gctx, t, e.Composition)
				if err != nil {
					return merry.Wrap(err, merry.AppendMessagef("frame %d at %s", i, t))
				}
				slots[i] <- frame
				return nil
			})
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < n; i++ {
			var frame *image.RGBA
			select {
			case frame = <-slots[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			err := e.Writer.WriteFrame(gctx, i, frame)
			e.Renderer.ReleaseFrame(frame)
			<-inFlight
			if err != nil {
				return merry.Wrap(err, merry.AppendMessagef("write frame %d", i))
			}
			if e.Progress != nil {
				e.Progress(i+1, n)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		// Frames still queued are never read.
		e.Renderer.CancelAllPending()
		logger.Error("export failed", slog.String("error", err.Error()))
		return Stats{}, err
	}

	stats := Stats{Frames: n, Elapsed: time.Since(start)}
	logger.Info("export finished",
		slog.Int("frames", stats.Frames),
		slog.Duration("elapsed", stats.Elapsed),
		slog.Float64("fps", stats.FPS()),
	)
	return stats, nil
}
