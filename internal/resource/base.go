package resource

import (
	"context"
	"image"
	"sync"

	"github.com/ansel1/merry/v2"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

// base carries the state every resource shares: readiness, duration,
// selected range and natural size.
type base struct {
	mu       sync.RWMutex
	status   Status
	duration mediatime.Time
	selected mediatime.Range
	size     image.Point
	inflight *Task
}

func (b *base) NaturalSize() image.Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *base) Duration() mediatime.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duration
}

func (b *base) SelectedRange() mediatime.Range {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selected
}

func (b *base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// prepare runs load once. Concurrent callers share the in-flight task and an
// available resource never loads again.
func (b *base) prepare(ctx context.Context, progress func(float64), load func(ctx context.Context, progress func(float64)) error) *Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status.IsAvailable() {
		return completedTask(Available())
	}
	if b.inflight != nil {
		return b.inflight
	}

	ctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)
	b.inflight = task

	if progress == nil {
		progress = func(float64) {}
	}

	go func() {
		defer cancel()
		err := load(ctx, progress)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}

		b.mu.Lock()
		if err == nil {
			b.status = Available()
			progress(1)
		} else {
			b.status = Unavailable(err)
		}
		status := b.status
		b.inflight = nil
		b.mu.Unlock()

		task.complete(status)
	}()

	return task
}

// validateSelection checks r against a source of the given duration.
func validateSelection(r mediatime.Range, duration mediatime.Time) error {
	if r.IsEmpty() {
		return merry.Wrap(ErrEmptyRange, merry.AppendMessagef("range %s", r))
	}
	if r.Start.Sign() < 0 || !r.Start.Before(duration) || r.End().After(duration) {
		return merry.Wrap(ErrOutOfRange, merry.AppendMessagef("range %s, duration %s", r, duration))
	}
	return nil
}

func (b *base) updateSelectedRange(r mediatime.Range) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := validateSelection(r, b.duration); err != nil {
		return err
	}
	b.selected = r
	return nil
}
