package timeline

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// Track ID namespaces. Each kind has two slots that alternate between even
// and odd clips; at most two clips overlap at once.
const (
	VideoTrackOffset       int32 = 100
	AudioTrackOffset       int32 = 1000
	BackgroundAudioTrackID int32 = 10000
)

// TrackID returns the synthetic track of track index of kind for the clip at clipIndex.
func TrackID(kind media.Kind, index, clipIndex int) int32 {
	slot := int32(clipIndex%2 + 1)
	switch kind {
	case media.KindBackgroundAudio:
		return BackgroundAudioTrackID + int32(index)
	case media.KindAudio:
		return int32(index) + AudioTrackOffset*slot
	default:
		return int32(index) + VideoTrackOffset*slot
	}
}

// TrackInfo places one track of a clip on a synthetic composition track.
type TrackInfo struct {
	Clip      *clip.Clip
	Index     int
	Kind      media.Kind
	TrackID   int32
	TimeRange mediatime.Range
}

func (t TrackInfo) String() string {
	return fmt.Sprintf("%s track %d -> #%d [%s]", t.Kind, t.Index, t.TrackID, t.TimeRange)
}

// TrackRef names the composition track a clip is read from.
type TrackRef struct {
	Clip    *clip.Clip
	TrackID int32
}

// TransitionTrackInfo is one blended segment: From fades into To.
type TransitionTrackInfo struct {
	From      TrackRef
	To        TrackRef
	Effect    effects.Effect
	TimeRange mediatime.Range
}

// Instruction is the scheduler output for one build.
type Instruction struct {
	// ClipTrackInfos are the physical placements, background audio last.
	ClipTrackInfos        []TrackInfo
	PassThroughTrackInfos []TrackInfo
	TransitionTrackInfos  []TransitionTrackInfo
	Duration              mediatime.Time
}

// Segment is either a pass-through or a transition.
type Segment struct {
	TimeRange   mediatime.Range
	PassThrough *TrackInfo
	Transition  *TransitionTrackInfo
}

// IsTransition reports whether the segment blends two sources.
func (s Segment) IsTransition() bool {
	return s.Transition != nil
}

// TrackIDs lists the sources of the segment, foreground first.
func (s Segment) TrackIDs() []int32 {
	if s.Transition != nil {
		return []int32{s.Transition.From.TrackID, s.Transition.To.TrackID}
	}
	if s.PassThrough != nil {
		return []int32{s.PassThrough.TrackID}
	}
	return nil
}

// Segments merges pass-through and transition segments ordered by start.
func (in *Instruction) Segments() []Segment {
	segments := make([]Segment, 0, len(in.PassThroughTrackInfos)+len(in.TransitionTrackInfos))
	for i := range in.PassThroughTrackInfos {
		p := &in.PassThroughTrackInfos[i]
		segments = append(segments, Segment{TimeRange: p.TimeRange, PassThrough: p})
	}
	for i := range in.TransitionTrackInfos {
		t := &in.TransitionTrackInfos[i]
		segments = append(segments, Segment{TimeRange: t.TimeRange, Transition: t})
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].TimeRange.Start.Before(segments[j].TimeRange.Start)
	})
	return segments
}

// Placements returns the clip placements of kind.
func (in *Instruction) Placements(kind media.Kind) []TrackInfo {
	return lo.Filter(in.ClipTrackInfos, func(t TrackInfo, _ int) bool {
		return t.Kind == kind
	})
}
