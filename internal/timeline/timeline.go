// Package timeline schedules clips: it computes where every clip is placed and
// partitions the timeline into pass-through and transition segments.
package timeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync/atomic"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

var (
	ErrNoClips                = merry.Sentinel("timeline has no clips")
	ErrClipsUnavailable       = merry.Sentinel("clips are not ready")
	ErrInvalidSegmentDuration = merry.Sentinel("invalid segment duration")
	ErrNoVideoTrack           = merry.Sentinel("clip has no video track")
)

// UnavailableClipsError lists the clips whose resources are not available.
// It matches ErrClipsUnavailable with errors.Is.
type UnavailableClipsError struct {
	Clips []*clip.Clip
}

func (e *UnavailableClipsError) Error() string {
	ids := lo.Map(e.Clips, func(c *clip.Clip, _ int) string { return c.ID })
	return fmt.Sprintf("%s: %s", ErrClipsUnavailable, strings.Join(ids, ", "))
}

func (e *UnavailableClipsError) Is(target error) bool {
	return target == ErrClipsUnavailable
}

// DefaultRenderSize is used when a timeline does not set one.
var DefaultRenderSize = image.Pt(960, 540)

// DefaultFrameDuration is 1/30 s.
var DefaultFrameDuration = mediatime.New(1, 30)

// Timeline is an ordered clip list with its transitions and render settings.
type Timeline struct {
	Clips           []*clip.Clip
	Transitions     TransitionProvider
	BackgroundAudio *clip.Clip

	RenderSize      image.Point
	FrameDuration   mediatime.Time
	BackgroundColor color.Color
}

// New returns a timeline with default render settings and no transitions.
func New(clips ...*clip.Clip) *Timeline {
	return &Timeline{
		Clips:           clips,
		RenderSize:      DefaultRenderSize,
		FrameDuration:   DefaultFrameDuration,
		BackgroundColor: color.Black,
	}
}

func (tl *Timeline) allClips() []*clip.Clip {
	if tl.BackgroundAudio == nil {
		return tl.Clips
	}
	return append(append([]*clip.Clip(nil), tl.Clips...), tl.BackgroundAudio)
}

// Prepare prepares every clip concurrently and fails with an
// *UnavailableClipsError if any of them did not become available.
func (tl *Timeline) Prepare(ctx context.Context, progress func(done, total int)) error {
	clips := tl.allClips()
	g, ctx := errgroup.WithContext(ctx)
	var done atomic.Int32
	for _, c := range clips {
		g.Go(func() error {
			_, err := c.Prepare(ctx, nil).Wait(ctx)
			n := done.Add(1)
			if progress != nil {
				progress(int(n), len(clips))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return checkReady(clips)
}

// Build schedules the timeline.
func (tl *Timeline) Build() (*Instruction, error) {
	return Build(tl.Clips, tl.Transitions, tl.BackgroundAudio)
}

func checkReady(clips []*clip.Clip) error {
	notReady := lo.Filter(clips, func(c *clip.Clip, _ int) bool { return !c.IsReady() })
	if len(notReady) > 0 {
		return &UnavailableClipsError{Clips: notReady}
	}
	return nil
}

func invalidDuration(format string, args ...any) error {
	return merry.Wrap(ErrInvalidSegmentDuration, merry.AppendMessagef(format, args...))
}

// Build computes clip placements, pass-through and transition segments.
// Clip start times are only written when the build succeeds.
func Build(clips []*clip.Clip, provider TransitionProvider, background *clip.Clip) (*Instruction, error) {
	n := len(clips)
	if n == 0 {
		return nil, merry.Wrap(ErrNoClips)
	}
	all := clips
	if background != nil {
		all = append(append([]*clip.Clip(nil), clips...), background)
	}
	if err := checkReady(all); err != nil {
		return nil, err
	}

	for i, c := range clips {
		if c.NumTracks(media.KindVideo) == 0 {
			return nil, merry.Wrap(ErrNoVideoTrack, merry.AppendMessagef("clip %d (%s)", i, c.ID))
		}
	}

	durations := lo.Map(clips, func(c *clip.Clip, _ int) mediatime.Time { return c.Duration() })
	for i, d := range durations {
		if d.Sign() <= 0 {
			return nil, invalidDuration("clip %d (%s) has duration %s", i, clips[i].ID, d)
		}
	}

	transitions := make([]Transition, max(n-1, 0))
	for i := range transitions {
		tr := Transition{Effect: effects.None, Duration: mediatime.Zero}
		if provider != nil {
			if got, ok := provider.TransitionFor(i, clips[i], clips[i+1]); ok {
				tr = got
			}
		}
		if tr.Effect.Value == "" {
			tr.Effect = effects.None
		}
		if tr.Duration.Sign() < 0 {
			return nil, invalidDuration("transition %d has negative duration %s", i, tr.Duration)
		}
		if tr.Duration.Sign() > 0 && (!tr.Duration.Before(durations[i]) || !tr.Duration.Before(durations[i+1])) {
			return nil, invalidDuration("transition %d of %s is not shorter than clips %d (%s) and %d (%s)",
				i, tr.Duration, i, durations[i], i+1, durations[i+1])
		}
		transitions[i] = tr
	}

	starts := make([]mediatime.Time, n)
	starts[0] = mediatime.Zero
	for i := 0; i < n-1; i++ {
		starts[i+1] = starts[i].Add(durations[i]).Sub(transitions[i].Duration)
	}
	total := starts[n-1].Add(durations[n-1])

	instr := &Instruction{Duration: total}

	for i, c := range clips {
		placed := mediatime.NewRange(starts[i], durations[i])
		for _, kind := range []media.Kind{media.KindVideo, media.KindAudio} {
			for k := 0; k < c.NumTracks(kind); k++ {
				instr.ClipTrackInfos = append(instr.ClipTrackInfos, TrackInfo{
					Clip:      c,
					Index:     k,
					Kind:      kind,
					TrackID:   TrackID(kind, k, i),
					TimeRange: placed,
				})
			}
		}

		passStart := starts[i]
		if i > 0 {
			passStart = passStart.Add(transitions[i-1].Duration)
		}
		passEnd := placed.End()
		if i < n-1 {
			passEnd = passEnd.Sub(transitions[i].Duration)
		}
		pass := mediatime.Span(passStart, passEnd)
		if pass.IsEmpty() {
			return nil, invalidDuration("clip %d (%s) pass-through %s is not positive", i, c.ID, pass)
		}
		instr.PassThroughTrackInfos = append(instr.PassThroughTrackInfos, TrackInfo{
			Clip:      c,
			Index:     0,
			Kind:      media.KindVideo,
			TrackID:   TrackID(media.KindVideo, 0, i),
			TimeRange: pass,
		})

		if i < n-1 && transitions[i].Duration.Sign() > 0 {
			instr.TransitionTrackInfos = append(instr.TransitionTrackInfos, TransitionTrackInfo{
				From:      TrackRef{Clip: c, TrackID: TrackID(media.KindVideo, 0, i)},
				To:        TrackRef{Clip: clips[i+1], TrackID: TrackID(media.KindVideo, 0, i+1)},
				Effect:    transitions[i].Effect,
				TimeRange: mediatime.NewRange(starts[i+1], transitions[i].Duration),
			})
		}
	}

	if background != nil {
		whole := mediatime.NewRange(mediatime.Zero, total)
		for k := 0; k < background.NumTracks(media.KindAudio); k++ {
			instr.ClipTrackInfos = append(instr.ClipTrackInfos, TrackInfo{
				Clip:      background,
				Index:     k,
				Kind:      media.KindBackgroundAudio,
				TrackID:   TrackID(media.KindBackgroundAudio, k, 0),
				TimeRange: whole,
			})
		}
	}

	for i, c := range clips {
		c.SetStartTime(starts[i])
	}
	if background != nil {
		background.SetStartTime(mediatime.Zero)
	}
	return instr, nil
}
