// Package clip places resources on a timeline.
package clip

import (
	"context"
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
)

// Clip is a positioned, time-bounded reference to a Resource.
type Clip struct {
	ID       string
	Resource resource.Resource

	VideoEnabled bool
	AudioEnabled bool

	// PostProcessing places decoded frames into the render frame. Nil means
	// DefaultProcessing.
	PostProcessing VideoProcessing

	startTime mediatime.Time
}

// New wraps res in a clip with video and audio enabled.
func New(res resource.Resource) *Clip {
	return &Clip{
		ID:           uuid.NewString(),
		Resource:     res,
		VideoEnabled: true,
		AudioEnabled: true,
	}
}

// StartTime is the position on the timeline, assigned by the scheduler.
func (c *Clip) StartTime() mediatime.Time {
	return c.startTime
}

// SetStartTime is called by the scheduler once a build succeeds.
func (c *Clip) SetStartTime(t mediatime.Time) {
	c.startTime = t
}

func (c *Clip) Duration() mediatime.Time {
	return c.Resource.SelectedRange().Duration
}

func (c *Clip) TimeRange() mediatime.Range {
	return mediatime.NewRange(c.startTime, c.Duration())
}

// IsReady reports whether the resource is available.
func (c *Clip) IsReady() bool {
	return c.Resource.Status().IsAvailable()
}

func (c *Clip) Prepare(ctx context.Context, progress func(float64)) *resource.Task {
	return c.Resource.Prepare(ctx, progress)
}

// NumTracks counts the resource tracks of kind that the clip contributes.
// Disabled media kinds contribute none.
func (c *Clip) NumTracks(kind media.Kind) int {
	switch {
	case kind == media.KindVideo && !c.VideoEnabled:
		return 0
	case kind.IsAudio() && !c.AudioEnabled:
		return 0
	}
	return len(c.Resource.Tracks(kind))
}

// Process runs the clip post-processing on a decoded source frame.
func (c *Clip) Process(src image.Image, fc FrameContext) (image.Image, error) {
	p := c.PostProcessing
	if p == nil {
		p = DefaultProcessing()
	}
	out, err := p.Process(src, fc)
	if err != nil {
		return nil, fmt.Errorf("clip %s: %w", c.ID, err)
	}
	return out, nil
}

func (c *Clip) String() string {
	return fmt.Sprintf("clip %s (%s)", c.ID, c.TimeRange())
}
