// Package composition turns a scheduled timeline into the physical track
// layout of a sink plus the per-time render instructions the compositor reads.
package composition

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sort"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var (
	ErrNoCompositionTrack = merry.Sentinel("composition track unavailable")
	ErrSegmentOverlap     = merry.Sentinel("segment overlaps an existing segment")
	ErrNoSegment          = merry.Sentinel("no segment at time")
	ErrNoSourceFrame      = merry.Sentinel("no source frame")
)

// TrackKey identifies one inserted segment: the track and the range it occupies.
type TrackKey struct {
	TrackID int32
	Range   string
}

// NewTrackKey keys the segment of track id placed at r.
func NewTrackKey(id int32, r mediatime.Range) TrackKey {
	return TrackKey{TrackID: id, Range: r.Key()}
}

// TrackMetadata is what the compositor needs to know about an inserted video
// segment besides its pixels.
type TrackMetadata struct {
	Clip        *clip.Clip
	Rotation    media.Rotation
	NaturalSize image.Point
}

// Layer is one source of a render instruction.
type Layer struct {
	TrackID  int32
	Clip     *clip.Clip
	Rotation media.Rotation
}

// RenderInstruction tells the compositor what to draw over TimeRange.
// Pass-through instructions have one layer; transitions have the foreground
// (outgoing) layer first and the background (incoming) layer second.
type RenderInstruction struct {
	TimeRange       mediatime.Range
	Layers          []Layer
	Effect          effects.Effect
	BackgroundColor color.Color
}

func (ri *RenderInstruction) IsTransition() bool {
	return len(ri.Layers) == 2
}

// TrackIDs lists the source tracks, foreground first.
func (ri *RenderInstruction) TrackIDs() []int32 {
	return lo.Map(ri.Layers, func(l Layer, _ int) int32 { return l.TrackID })
}

// Layer returns the layer reading from track id.
func (ri *RenderInstruction) Layer(id int32) (Layer, bool) {
	return lo.Find(ri.Layers, func(l Layer) bool { return l.TrackID == id })
}

func (ri *RenderInstruction) String() string {
	if ri.IsTransition() {
		return fmt.Sprintf("%s %d -> %d [%s]", ri.Effect, ri.Layers[0].TrackID, ri.Layers[1].TrackID, ri.TimeRange)
	}
	return fmt.Sprintf("passthrough %v [%s]", ri.TrackIDs(), ri.TimeRange)
}

// Result is a built composition.
type Result struct {
	Instructions  []RenderInstruction
	TrackMetadata map[TrackKey]TrackMetadata
	Duration      mediatime.Time
	Sink          Sink
}

// InstructionAt returns the instruction active at t.
func (r *Result) InstructionAt(t mediatime.Time) (*RenderInstruction, bool) {
	i := sort.Search(len(r.Instructions), func(i int) bool {
		return t.Before(r.Instructions[i].TimeRange.End())
	})
	if i < len(r.Instructions) && r.Instructions[i].TimeRange.Contains(t) {
		return &r.Instructions[i], true
	}
	return nil, false
}

// Metadata returns the side-table entry of the segment on track id at r.
func (r *Result) Metadata(id int32, placed mediatime.Range) (TrackMetadata, bool) {
	md, ok := r.TrackMetadata[NewTrackKey(id, placed)]
	return md, ok
}

// Builder writes an Instruction into a Sink.
type Builder struct {
	Sink            Sink
	Logger          *slog.Logger
	BackgroundColor color.Color
}

// Build inserts every clip placement into the sink and derives the render
// instructions from the pass-through and transition segments.
func (b *Builder) Build(instr *timeline.Instruction) (*Result, error) {
	if instr == nil {
		return nil, merry.Wrap(timeline.ErrNoClips)
	}
	logger := logging.WithComponent(logging.OrDiscard(b.Logger), "composition")
	bg := b.BackgroundColor
	if bg == nil {
		bg = color.Black
	}

	res := &Result{
		TrackMetadata: make(map[TrackKey]TrackMetadata),
		Duration:      instr.Duration,
		Sink:          b.Sink,
	}

	for _, p := range instr.ClipTrackInfos {
		if err := b.place(res, p, instr.Duration); err != nil {
			return nil, err
		}
	}

	for _, seg := range instr.Segments() {
		ri := RenderInstruction{
			TimeRange:       seg.TimeRange,
			Effect:          effects.None,
			BackgroundColor: bg,
		}
		if seg.IsTransition() {
			tr := seg.Transition
			ri.Effect = tr.Effect
			ri.Layers = []Layer{
				b.layer(res, tr.From.TrackID, tr.From.Clip),
				b.layer(res, tr.To.TrackID, tr.To.Clip),
			}
		} else {
			ri.Layers = []Layer{b.layer(res, seg.PassThrough.TrackID, seg.PassThrough.Clip)}
		}
		res.Instructions = append(res.Instructions, ri)
	}

	logger.Debug("composition built",
		slog.Int("instructions", len(res.Instructions)),
		slog.Int("segments", len(res.TrackMetadata)),
		slog.Float64("duration", instr.Duration.Seconds()),
	)
	return res, nil
}

func (b *Builder) place(res *Result, p timeline.TrackInfo, total mediatime.Time) error {
	kind := p.Kind
	sourceKind := kind
	if kind == media.KindBackgroundAudio {
		sourceKind = media.KindAudio
	}
	info, err := p.Clip.Resource.TrackInfo(sourceKind, p.Index)
	if err != nil {
		return merry.Wrap(err, merry.AppendMessagef("clip %s", p.Clip.ID))
	}

	id, err := b.ensureTrack(kind, p.TrackID)
	if err != nil {
		return err
	}
	src := Source{Clip: p.Clip, Track: info.Track}

	if kind == media.KindBackgroundAudio {
		for _, loop := range mediatime.LoopRanges(info.SelectedRange, p.TimeRange.Start, total) {
			if err := b.Sink.InsertSegment(id, src, loop.Range, loop.At); err != nil {
				return merry.Wrap(err, merry.AppendMessagef("background audio at %s", loop.At))
			}
		}
		return nil
	}

	insert := mediatime.Min(info.Track.TimeRange.Duration, info.SelectedRange.Duration)
	srcRange := mediatime.NewRange(info.SelectedRange.Start, insert)
	if err := b.Sink.InsertSegment(id, src, srcRange, p.TimeRange.Start); err != nil {
		return merry.Wrap(err, merry.AppendMessagef("clip %s on track %d", p.Clip.ID, id))
	}
	target := mediatime.NewRange(p.TimeRange.Start, insert)
	if info.ScaleTo != nil && !info.ScaleTo.Equal(insert) {
		if err := b.Sink.ScaleSegment(id, target, *info.ScaleTo); err != nil {
			return merry.Wrap(err, merry.AppendMessagef("clip %s on track %d", p.Clip.ID, id))
		}
		target = mediatime.NewRange(p.TimeRange.Start, *info.ScaleTo)
	}

	if kind == media.KindVideo {
		res.TrackMetadata[NewTrackKey(id, target)] = TrackMetadata{
			Clip:        p.Clip,
			Rotation:    info.Track.Rotation,
			NaturalSize: info.Track.NaturalSize,
		}
	}
	return nil
}

// ensureTrack finds the track preferredID or adds it. A sink that assigns a
// different ID is treated as a refusal: instructions address tracks by the
// scheduled ID.
func (b *Builder) ensureTrack(kind media.Kind, preferredID int32) (int32, error) {
	if existing, ok := b.Sink.Track(preferredID); ok {
		if existing != kind {
			return 0, merry.Wrap(ErrNoCompositionTrack,
				merry.AppendMessagef("track %d is %s, want %s", preferredID, existing, kind))
		}
		return preferredID, nil
	}
	id, err := b.Sink.AddTrack(kind, preferredID)
	if err != nil {
		return 0, merry.Wrap(ErrNoCompositionTrack, merry.AppendMessagef("track %d: %v", preferredID, err))
	}
	if id != preferredID {
		return 0, merry.Wrap(ErrNoCompositionTrack, merry.AppendMessagef("asked for track %d, got %d", preferredID, id))
	}
	return id, nil
}

func (b *Builder) layer(res *Result, id int32, c *clip.Clip) Layer {
	l := Layer{TrackID: id, Clip: c}
	for key, md := range res.TrackMetadata {
		if key.TrackID == id && md.Clip == c {
			l.Rotation = md.Rotation
			break
		}
	}
	return l
}

// Compose schedules tl and builds it into sink.
func Compose(tl *timeline.Timeline, sink Sink, logger *slog.Logger) (*Result, error) {
	instr, err := tl.Build()
	if err != nil {
		return nil, err
	}
	b := &Builder{Sink: sink, Logger: logger, BackgroundColor: tl.BackgroundColor}
	return b.Build(instr)
}
