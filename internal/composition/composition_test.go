package composition

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
	"github.com/ivlev/timeline2video/internal/timeline"
)

func sec(s int64) mediatime.Time { return mediatime.Seconds(s) }

func span(start, end int64) mediatime.Range { return mediatime.Span(sec(start), sec(end)) }

func stillClip(d int64) *clip.Clip {
	return clip.New(resource.NewImageResource(image.NewRGBA(image.Rect(0, 0, 4, 4)), sec(d)))
}

type stubProber struct{ result *resource.ProbeResult }

func (p stubProber) Probe(context.Context, string) (*resource.ProbeResult, error) {
	return p.result, nil
}

func audioClip(t *testing.T, seconds int) *clip.Clip {
	t.Helper()
	result := &resource.ProbeResult{
		Format:  resource.ProbeFormat{Duration: fmt.Sprintf("%d.000", seconds)},
		Streams: []resource.ProbeStream{{Index: 0, CodecType: "audio"}},
	}
	res := resource.NewMediaResource("music.m4a", resource.WithProber(stubProber{result}))
	status, err := res.Prepare(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	require.True(t, status.IsAvailable())
	return clip.New(res)
}

func fadeTimeline(clips ...*clip.Clip) *timeline.Timeline {
	tl := timeline.New(clips...)
	tl.Transitions = timeline.DefaultTransitionProvider{
		Transition: timeline.Transition{Effect: effects.Fade, Duration: sec(1)},
	}
	return tl
}

func assertRange(t *testing.T, want, got mediatime.Range) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestComposeWorkedExample(t *testing.T) {
	a, b, c := stillClip(5), stillClip(5), stillClip(5)
	sink := NewMemorySink()
	res, err := Compose(fadeTimeline(a, b, c), sink, nil)
	require.NoError(t, err)

	assert.True(t, res.Duration.Equal(sec(13)))
	assert.Equal(t, []int32{100, 200}, sink.TrackIDs())

	on100 := sink.Segments(100)
	require.Len(t, on100, 2)
	assertRange(t, span(0, 5), on100[0].Target)
	assertRange(t, span(8, 13), on100[1].Target)
	on200 := sink.Segments(200)
	require.Len(t, on200, 1)
	assertRange(t, span(4, 9), on200[0].Target)

	require.Len(t, res.Instructions, 5)
	wantRanges := []mediatime.Range{span(0, 4), span(4, 5), span(5, 8), span(8, 9), span(9, 13)}
	for i, ri := range res.Instructions {
		assertRange(t, wantRanges[i], ri.TimeRange)
		assert.Equal(t, i%2 == 1, ri.IsTransition(), "instruction %d", i)
		assert.Equal(t, color.Black, ri.BackgroundColor)
	}

	tr := res.Instructions[1]
	assert.Equal(t, effects.Fade, tr.Effect)
	assert.Equal(t, []int32{100, 200}, tr.TrackIDs())
	assert.Same(t, a, tr.Layers[0].Clip)
	assert.Same(t, b, tr.Layers[1].Clip)
	assert.Equal(t, []int32{200, 100}, res.Instructions[3].TrackIDs())
	assert.Equal(t, effects.None, res.Instructions[2].Effect)

	md, ok := res.Metadata(200, span(4, 9))
	require.True(t, ok)
	assert.Same(t, b, md.Clip)
	assert.Equal(t, image.Pt(4, 4), md.NaturalSize)
	assert.Equal(t, media.Rotate0, md.Rotation)
}

func TestInstructionAt(t *testing.T) {
	res, err := Compose(fadeTimeline(stillClip(5), stillClip(5), stillClip(5)), NewMemorySink(), nil)
	require.NoError(t, err)

	tests := []struct {
		at         mediatime.Time
		transition bool
		found      bool
	}{
		{sec(0), false, true},
		{mediatime.Milliseconds(3999), false, true},
		{sec(4), true, true},
		{mediatime.Milliseconds(8500), true, true},
		{sec(12), false, true},
		{sec(13), false, false},
		{sec(-1), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.at.String(), func(t *testing.T) {
			ri, ok := res.InstructionAt(tt.at)
			assert.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.transition, ri.IsTransition())
				assert.True(t, ri.TimeRange.Contains(tt.at))
			}
		})
	}
}

func TestBackgroundAudioLoops(t *testing.T) {
	tl := fadeTimeline(stillClip(5), stillClip(5), stillClip(5))
	tl.BackgroundAudio = audioClip(t, 4)
	sink := NewMemorySink()

	_, err := Compose(tl, sink, nil)
	require.NoError(t, err)

	kind, ok := sink.Track(timeline.BackgroundAudioTrackID)
	require.True(t, ok)
	assert.Equal(t, media.KindBackgroundAudio, kind)

	segs := sink.Segments(timeline.BackgroundAudioTrackID)
	require.Len(t, segs, 4)
	assertRange(t, span(0, 4), segs[0].Target)
	assertRange(t, span(12, 13), segs[3].Target)
	assertRange(t, span(0, 1), segs[3].SourceRange)
}

func TestSourceFrame(t *testing.T) {
	res, err := Compose(fadeTimeline(stillClip(5), stillClip(5)), NewMemorySink(), nil)
	require.NoError(t, err)
	sink := res.Sink.(*MemorySink)

	img, err := sink.SourceFrame(context.Background(), 200, sec(6), image.Pt(8, 8))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 4), img.Bounds().Size())

	_, err = sink.SourceFrame(context.Background(), 200, sec(1), image.Pt(8, 8))
	assert.ErrorIs(t, err, ErrNoSourceFrame)
	_, err = sink.SourceFrame(context.Background(), 555, sec(1), image.Pt(8, 8))
	assert.ErrorIs(t, err, ErrNoSourceFrame)
}

func TestTrackRefused(t *testing.T) {
	_, err := Compose(fadeTimeline(stillClip(5), stillClip(5)), NewMemorySink(WithMaxTracks(1)), nil)
	assert.ErrorIs(t, err, ErrNoCompositionTrack)
}

type renumberingSink struct{ *MemorySink }

func (s renumberingSink) AddTrack(kind media.Kind, preferredID int32) (int32, error) {
	return s.MemorySink.AddTrack(kind, preferredID+1)
}

func TestTrackRenumberedIsRefused(t *testing.T) {
	_, err := Compose(fadeTimeline(stillClip(5)), renumberingSink{NewMemorySink()}, nil)
	assert.ErrorIs(t, err, ErrNoCompositionTrack)
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	id, err := s.AddTrack(media.KindVideo, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, id)
	id, err = s.AddTrack(media.KindVideo, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 101, id)

	src := Source{Clip: stillClip(10)}
	require.NoError(t, s.InsertSegment(100, src, mediatime.NewRange(sec(2), sec(4)), sec(10)))

	err = s.InsertSegment(100, src, mediatime.NewRange(sec(0), sec(2)), sec(13))
	assert.ErrorIs(t, err, ErrSegmentOverlap)
	err = s.InsertSegment(7, src, mediatime.NewRange(sec(0), sec(2)), sec(0))
	assert.ErrorIs(t, err, ErrNoCompositionTrack)
	err = s.InsertSegment(100, src, mediatime.NewRange(sec(0), sec(0)), sec(0))
	assert.ErrorIs(t, err, resource.ErrEmptyRange)

	seg, ok := s.Occupant(100, sec(12))
	require.True(t, ok)
	assert.True(t, seg.SourceTime(sec(12)).Equal(sec(4)))

	require.NoError(t, s.ScaleSegment(100, mediatime.NewRange(sec(10), sec(4)), sec(8)))
	seg, ok = s.Occupant(100, sec(16))
	require.True(t, ok)
	assertRange(t, span(10, 18), seg.Target)
	assert.InDelta(t, 5.0, seg.SourceTime(sec(16)).Seconds(), 1e-9)

	err = s.ScaleSegment(100, mediatime.NewRange(sec(3), sec(1)), sec(2))
	assert.ErrorIs(t, err, ErrNoSegment)

	_, ok = s.Occupant(100, sec(18))
	assert.False(t, ok)
}
