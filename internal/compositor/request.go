package compositor

import (
	"context"
	"image"
	"sync"

	"github.com/ansel1/merry/v2"

	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

type result struct {
	frame *image.RGBA
	err   error
}

// FrameRequest is a Request whose outcome is collected with Wait.
type FrameRequest struct {
	time   mediatime.Time
	instr  *composition.RenderInstruction
	frames map[int32]image.Image

	once sync.Once
	done chan result
}

// NewFrameRequest asks for the frame at t described by instr, with the
// decoded source frames keyed by track ID.
func NewFrameRequest(t mediatime.Time, instr *composition.RenderInstruction, frames map[int32]image.Image) *FrameRequest {
	return &FrameRequest{time: t, instr: instr, frames: frames, done: make(chan result, 1)}
}

func (r *FrameRequest) CompositionTime() mediatime.Time { return r.time }

func (r *FrameRequest) Instruction() *composition.RenderInstruction { return r.instr }

func (r *FrameRequest) SourceTrackIDs() []int32 {
	if r.instr == nil {
		return nil
	}
	return r.instr.TrackIDs()
}

func (r *FrameRequest) SourceFrame(id int32) image.Image {
	return r.frames[id]
}

func (r *FrameRequest) Finish(frame *image.RGBA) {
	r.complete(result{frame: frame})
}

func (r *FrameRequest) FinishWithError(err error) {
	r.complete(result{err: err})
}

func (r *FrameRequest) FinishCancelled() {
	r.complete(result{err: merry.Wrap(ErrCancelled, merry.AppendMessagef("at %s", r.time))})
}

func (r *FrameRequest) complete(res result) {
	r.once.Do(func() { r.done <- res })
}

// Wait blocks until the request finishes or ctx ends.
func (r *FrameRequest) Wait(ctx context.Context) (*image.RGBA, error) {
	select {
	case res := <-r.done:
		return res.frame, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Render resolves the instruction at t in comp, decodes its source frames and
// renders them synchronously on c. Source frames that cannot be decoded are
// left out; the compositor reports them as unavailable.
func (c *Compositor) Render(ctx context.Context, t mediatime.Time, comp *composition.Result) (*image.RGBA, error) {
	req, err := c.NewRequest(ctx, t, comp)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.StartRequest(req)
	return req.Wait(ctx)
}

// NewRequest prepares the request for time t without submitting it.
func (c *Compositor) NewRequest(ctx context.Context, t mediatime.Time, comp *composition.Result) (*FrameRequest, error) {
	instr, ok := comp.InstructionAt(t)
	if !ok {
		return NewFrameRequest(t, nil, nil), nil
	}
	frames := make(map[int32]image.Image, len(instr.Layers))
	fs, ok := comp.Sink.(composition.FrameSource)
	if !ok {
		return NewFrameRequest(t, instr, frames), nil
	}
	size := c.RenderContext().Size
	for _, id := range instr.TrackIDs() {
		img, err := fs.SourceFrame(ctx, id, t, size)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Debug("source frame missing", "track", id, "time", t.Seconds(), "error", err.Error())
			continue
		}
		frames[id] = img
	}
	return NewFrameRequest(t, instr, frames), nil
}
