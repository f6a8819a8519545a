// Package resource abstracts media sources placed on a timeline: still images,
// PDF pages, generated slates and probed audio/video files.
package resource

import (
	"context"
	"image"
	"sync"

	"github.com/ansel1/merry/v2"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

var (
	ErrOutOfRange  = merry.Sentinel("selected range outside resource duration")
	ErrEmptyRange  = merry.Sentinel("selected range is empty")
	ErrNoTrack     = merry.Sentinel("no such track")
	ErrNotPrepared = merry.Sentinel("resource not prepared")
)

// Resource is an asynchronously prepared media source.
type Resource interface {
	NaturalSize() image.Point
	// Duration is the maximum usable duration of the source.
	Duration() mediatime.Time
	// SelectedRange is the part of the source that is placed on the timeline.
	SelectedRange() mediatime.Range
	Status() Status

	// Prepare loads whatever the resource needs before its tracks can be used.
	// The returned task completes exactly once, also when ctx is cancelled.
	Prepare(ctx context.Context, progress func(float64)) *Task
	UpdateSelectedRange(r mediatime.Range) error

	Tracks(kind media.Kind) []media.Track
	TrackInfo(kind media.Kind, index int) (TrackInfo, error)

	// Image returns a raster for sources that are not decoded by the
	// composition sink (stills). Decoded sources return nil.
	Image(at mediatime.Time, renderSize image.Point) image.Image
}

// FrameDecoder is implemented by resources whose frames are decoded on demand.
type FrameDecoder interface {
	FrameAt(ctx context.Context, at mediatime.Time) (image.Image, error)
}

// TrackInfo tells the composition sink what to insert for one track.
type TrackInfo struct {
	Track         media.Track
	SelectedRange mediatime.Range
	// ScaleTo, when set, stretches the inserted segment to this duration.
	ScaleTo *mediatime.Time
}

// Status is the readiness of a resource.
type Status struct {
	available bool
	reason    error
}

// Available is the status of a usable resource.
func Available() Status {
	return Status{available: true}
}

// Unavailable is the status of a resource that cannot be used yet, with an optional reason.
func Unavailable(reason error) Status {
	return Status{reason: reason}
}

func (s Status) IsAvailable() bool { return s.available }

func (s Status) Reason() error { return s.reason }

func (s Status) String() string {
	if s.available {
		return "available"
	}
	if s.reason != nil {
		return "unavailable: " + s.reason.Error()
	}
	return "unavailable"
}

// Task is the handle of an in-progress Prepare call.
type Task struct {
	done   chan struct{}
	once   sync.Once
	status Status
	cancel context.CancelFunc
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{done: make(chan struct{}), cancel: cancel}
}

func completedTask(s Status) *Task {
	t := newTask(nil)
	t.complete(s)
	return t
}

func (t *Task) complete(s Status) {
	t.once.Do(func() {
		t.status = s
		close(t.done)
	})
}

// Done is closed once the task has a final status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status returns the final status. It is only meaningful after Done is closed.
func (t *Task) Status() Status {
	select {
	case <-t.done:
		return t.status
	default:
		return Unavailable(nil)
	}
}

// Wait blocks until the task completes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.done:
		return t.status, nil
	case <-ctx.Done():
		return Unavailable(ctx.Err()), ctx.Err()
	}
}

// Cancel aborts the preparation. The task still completes, with an unavailable status.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}
