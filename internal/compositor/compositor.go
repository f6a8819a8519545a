// Package compositor renders output frames: it passes one source through or
// blends two sources with the active transition effect.
package compositor

import (
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"
	"github.com/samber/lo"
	"golang.org/x/image/draw"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/renderer"
	"github.com/ivlev/timeline2video/internal/system"
)

var (
	ErrSourceFrameUnavailable = merry.Sentinel("source frame unavailable")
	ErrRenderFailure          = merry.Sentinel("render failure")
	ErrNoInstruction          = merry.Sentinel("no instruction at composition time")
	ErrCancelled              = merry.Sentinel("request cancelled")
)

// Request is one output frame asked of a compositor. Exactly one of the
// Finish methods is called per request.
type Request interface {
	CompositionTime() mediatime.Time
	Instruction() *composition.RenderInstruction
	SourceTrackIDs() []int32
	// SourceFrame returns the decoded frame of track id, or nil.
	SourceFrame(id int32) image.Image
	Finish(frame *image.RGBA)
	FinishWithError(err error)
	FinishCancelled()
}

// RenderContext is the output frame geometry.
type RenderContext struct {
	Size          image.Point
	FrameDuration mediatime.Time
}

// FrameCompositor is driven by whoever produces output timestamps.
type FrameCompositor interface {
	StartRequest(req Request)
	RenderContextChanged(rc RenderContext)
	// CancelAllPending cancels requests admitted so far that have not started.
	// Requests admitted afterwards are served normally.
	CancelAllPending()
}

var _ FrameCompositor = (*Compositor)(nil)

type State enum.Member[string]

var (
	StateIdle        = State{"idle"}
	StateResolving   = State{"resolving"}
	StatePassthrough = State{"passthrough"}
	StateTransition  = State{"transition"}
	StateFinished    = State{"finished"}
	StateCancelled   = State{"cancelled"}
	States           = enum.New(StateIdle, StateResolving, StatePassthrough, StateTransition, StateFinished, StateCancelled)
)

// Stats counts how requests ended.
type Stats struct {
	Finished  int64
	Failed    int64
	Cancelled int64
}

type job struct {
	req   Request
	epoch uint64
}

// Compositor serves requests in admission order on one worker goroutine.
type Compositor struct {
	logger *slog.Logger

	ctxMu sync.RWMutex
	rc    RenderContext
	pool  *system.ImagePool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	epoch  uint64
	closed bool
	done   chan struct{}

	// worker-only
	renderer *renderer.TransitionRenderer

	state                       atomic.Value
	finished, failed, cancelled atomic.Int64
}

// Option configures a Compositor.
type Option func(*Compositor)

func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) { c.logger = l }
}

// WithEasing reshapes transition progress before it reaches the effect.
func WithEasing(e renderer.Easing) Option {
	return func(c *Compositor) { c.renderer = renderer.New(e) }
}

// New starts a compositor for frames of rc.
func New(rc RenderContext, opts ...Option) *Compositor {
	c := &Compositor{
		rc:       rc,
		pool:     system.NewImagePool(),
		done:     make(chan struct{}),
		renderer: renderer.New(renderer.Linear),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(logging.OrDiscard(c.logger), "compositor")
	c.state.Store(StateIdle)
	go c.run()
	return c
}

// StartRequest queues req. Requests reaching a closed compositor are cancelled.
func (c *Compositor) StartRequest(req Request) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.cancelled.Add(1)
		req.FinishCancelled()
		return
	}
	c.queue = append(c.queue, job{req: req, epoch: c.epoch})
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *Compositor) CancelAllPending() {
	c.mu.Lock()
	c.epoch++
	pending := len(c.queue)
	c.mu.Unlock()
	c.logger.Debug("cancelling pending requests", slog.Int("pending", pending))
}

func (c *Compositor) RenderContextChanged(rc RenderContext) {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	if rc.Size != c.rc.Size {
		c.pool = system.NewImagePool()
	}
	c.rc = rc
}

// Pending is the number of queued requests that have not started.
func (c *Compositor) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// RenderContext returns the current render context.
func (c *Compositor) RenderContext() RenderContext {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.rc
}

// ReleaseFrame hands a finished frame back for reuse once the caller is done with it.
func (c *Compositor) ReleaseFrame(frame *image.RGBA) {
	c.ctxMu.RLock()
	pool := c.pool
	c.ctxMu.RUnlock()
	pool.Put(frame)
}

// State is the state of the worker.
func (c *Compositor) State() State {
	return c.state.Load().(State)
}

func (c *Compositor) Stats() Stats {
	return Stats{Finished: c.finished.Load(), Failed: c.failed.Load(), Cancelled: c.cancelled.Load()}
}

// Close cancels queued requests, waits for the in-flight one and stops the worker.
func (c *Compositor) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
	<-c.done
}

func (c *Compositor) run() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		j := c.queue[0]
		c.queue[0] = job{}
		c.queue = c.queue[1:]
		stale := c.closed || j.epoch < c.epoch
		c.mu.Unlock()

		if stale {
			c.setState(StateCancelled)
			c.cancelled.Add(1)
			j.req.FinishCancelled()
		} else {
			c.process(j.req)
		}
		c.setState(StateIdle)
	}
}

func (c *Compositor) setState(s State) {
	c.state.Store(s)
}

func (c *Compositor) snapshot() (RenderContext, *system.ImagePool) {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.rc, c.pool
}

func (c *Compositor) fail(req Request, err error) {
	c.failed.Add(1)
	c.logger.Debug("request failed",
		slog.Float64("time", req.CompositionTime().Seconds()),
		slog.String("error", err.Error()),
	)
	req.FinishWithError(err)
}

func (c *Compositor) process(req Request) {
	c.setState(StateResolving)
	rc, pool := c.snapshot()
	t := req.CompositionTime()

	instr := req.Instruction()
	if instr == nil || len(instr.Layers) == 0 {
		c.fail(req, merry.Wrap(ErrNoInstruction, merry.AppendMessagef("at %s", t)))
		return
	}

	rect := image.Rectangle{Max: rc.Size}
	layers := make([]*image.RGBA, 0, len(instr.Layers))
	release := func() {
		for _, l := range layers {
			pool.Put(l)
		}
	}
	for _, l := range instr.Layers {
		src := req.SourceFrame(l.TrackID)
		if src == nil {
			release()
			c.fail(req, merry.Wrap(ErrSourceFrameUnavailable, merry.AppendMessagef("track %d at %s", l.TrackID, t)))
			return
		}
		processed, err := l.Clip.Process(src, clip.FrameContext{RenderSize: rc.Size, Time: t, Rotation: l.Rotation})
		if err != nil {
			release()
			c.fail(req, merry.Wrap(ErrRenderFailure, merry.AppendMessagef("track %d at %s: %v", l.TrackID, t, err)))
			return
		}
		flat := pool.Get(rect)
		flatten(flat, processed, instr.BackgroundColor)
		layers = append(layers, flat)
	}

	if !instr.IsTransition() {
		c.setState(StatePassthrough)
		c.finished.Add(1)
		c.setState(StateFinished)
		req.Finish(layers[0])
		return
	}

	c.setState(StateTransition)
	defer release()
	if err := c.renderer.Use(instr.Effect); err != nil {
		c.fail(req, merry.Wrap(ErrRenderFailure, merry.AppendMessagef("effect %s: %v", instr.Effect, err)))
		return
	}
	tween := lo.Clamp(instr.TimeRange.Fraction(t), 0, 1)
	out := pool.Get(rect)
	if err := c.renderer.Render(out, layers[0], layers[1], tween); err != nil {
		pool.Put(out)
		c.fail(req, merry.Wrap(ErrRenderFailure, merry.AppendMessagef("%s at %.3f: %v", instr.Effect, tween, err)))
		return
	}
	c.finished.Add(1)
	c.setState(StateFinished)
	req.Finish(out)
}

// flatten draws src over an opaque background into dst.
func flatten(dst *image.RGBA, src image.Image, bg color.Color) {
	if bg == nil {
		bg = color.Black
	}
	draw.Draw(dst, dst.Rect, image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Rect, src, src.Bounds().Min, draw.Over)
}
