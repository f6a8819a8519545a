package composition

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/ansel1/merry/v2"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
)

// Source is what a sink segment reads from.
type Source struct {
	Clip  *clip.Clip
	Track media.Track
}

// Sink receives the physical layout of a composition.
type Sink interface {
	// AddTrack creates a track of kind. The sink may assign a different ID
	// than preferredID or refuse.
	AddTrack(kind media.Kind, preferredID int32) (int32, error)
	// Track reports the kind of an existing track.
	Track(id int32) (media.Kind, bool)
	// InsertSegment places srcRange of src on track id starting at at.
	InsertSegment(id int32, src Source, srcRange mediatime.Range, at mediatime.Time) error
	// ScaleSegment stretches the segment occupying r on track id to last to.
	ScaleSegment(id int32, r mediatime.Range, to mediatime.Time) error
}

// FrameSource decodes the frame a composition track shows at a time.
type FrameSource interface {
	SourceFrame(ctx context.Context, id int32, t mediatime.Time, renderSize image.Point) (image.Image, error)
}

// Segment is one inserted piece of a sink track.
type Segment struct {
	Source      Source
	SourceRange mediatime.Range
	Target      mediatime.Range
}

// SourceTime maps composition time t inside the segment to source time,
// honouring any scaling applied to the segment.
func (s Segment) SourceTime(t mediatime.Time) mediatime.Time {
	if s.Target.Duration.Equal(s.SourceRange.Duration) {
		return s.SourceRange.Start.Add(t.Sub(s.Target.Start))
	}
	offset := s.Target.Fraction(t) * s.SourceRange.Duration.Seconds()
	return s.SourceRange.Start.Add(mediatime.FromSeconds(offset, s.SourceRange.Duration.Scale))
}

type memoryTrack struct {
	kind     media.Kind
	segments []Segment
}

// MemorySink is an in-memory Sink that can also decode source frames.
type MemorySink struct {
	mu        sync.RWMutex
	ids       mapset.Set[int32]
	tracks    map[int32]*memoryTrack
	maxTracks int
}

// MemorySinkOption configures a MemorySink.
type MemorySinkOption func(*MemorySink)

// WithMaxTracks makes AddTrack refuse tracks beyond n.
func WithMaxTracks(n int) MemorySinkOption {
	return func(s *MemorySink) { s.maxTracks = n }
}

func NewMemorySink(opts ...MemorySinkOption) *MemorySink {
	s := &MemorySink{
		ids:    mapset.NewThreadUnsafeSet[int32](),
		tracks: make(map[int32]*memoryTrack),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTrack honours preferredID when it is free, otherwise it assigns the
// next free ID above it.
func (s *MemorySink) AddTrack(kind media.Kind, preferredID int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxTracks > 0 && s.ids.Cardinality() >= s.maxTracks {
		return 0, merry.Wrap(ErrNoCompositionTrack, merry.AppendMessagef("track limit %d reached", s.maxTracks))
	}
	id := preferredID
	if id <= 0 {
		id = 1
	}
	for s.ids.Contains(id) {
		id++
	}
	s.ids.Add(id)
	s.tracks[id] = &memoryTrack{kind: kind}
	return id, nil
}

func (s *MemorySink) Track(id int32) (media.Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return media.Kind{}, false
	}
	return t.kind, true
}

func (s *MemorySink) InsertSegment(id int32, src Source, srcRange mediatime.Range, at mediatime.Time) error {
	if srcRange.IsEmpty() {
		return merry.Wrap(resource.ErrEmptyRange, merry.AppendMessagef("insert on track %d", id))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracks[id]
	if !ok {
		return merry.Wrap(ErrNoCompositionTrack, merry.AppendMessagef("track %d", id))
	}
	target := mediatime.NewRange(at, srcRange.Duration)
	if err := t.checkFree(target, -1); err != nil {
		return err
	}
	t.segments = append(t.segments, Segment{Source: src, SourceRange: srcRange, Target: target})
	sort.Slice(t.segments, func(i, j int) bool {
		return t.segments[i].Target.Start.Before(t.segments[j].Target.Start)
	})
	return nil
}

// ScaleSegment finds the segment starting at r.Start and stretches it to to.
func (s *MemorySink) ScaleSegment(id int32, r mediatime.Range, to mediatime.Time) error {
	if to.Sign() <= 0 {
		return merry.Wrap(resource.ErrEmptyRange, merry.AppendMessagef("scale track %d to %s", id, to))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracks[id]
	if !ok {
		return merry.Wrap(ErrNoCompositionTrack, merry.AppendMessagef("track %d", id))
	}
	for i := range t.segments {
		if !t.segments[i].Target.Start.Equal(r.Start) {
			continue
		}
		scaled := mediatime.NewRange(r.Start, to)
		if err := t.checkFree(scaled, i); err != nil {
			return err
		}
		t.segments[i].Target = scaled
		return nil
	}
	return merry.Wrap(ErrNoSegment, merry.AppendMessagef("track %d at %s", id, r.Start))
}

func (t *memoryTrack) checkFree(r mediatime.Range, skip int) error {
	for i, seg := range t.segments {
		if i == skip {
			continue
		}
		if !seg.Target.Intersect(r).IsEmpty() {
			return merry.Wrap(ErrSegmentOverlap, merry.AppendMessagef("%s overlaps %s", r, seg.Target))
		}
	}
	return nil
}

// TrackIDs lists the tracks in ascending order.
func (s *MemorySink) TrackIDs() []int32 {
	s.mu.RLock()
	ids := s.ids.ToSlice()
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Segments returns a copy of the segments of track id ordered by start.
func (s *MemorySink) Segments(id int32) []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil
	}
	return append([]Segment(nil), t.segments...)
}

// Occupant returns the segment of track id that covers t.
func (s *MemorySink) Occupant(id int32, t mediatime.Time) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.tracks[id]
	if !ok {
		return Segment{}, false
	}
	i := sort.Search(len(tr.segments), func(i int) bool {
		return t.Before(tr.segments[i].Target.End())
	})
	if i < len(tr.segments) && tr.segments[i].Target.Contains(t) {
		return tr.segments[i], true
	}
	return Segment{}, false
}

// SourceFrame returns the raw frame shown on track id at t. Stills come from
// the resource raster, everything else is decoded.
func (s *MemorySink) SourceFrame(ctx context.Context, id int32, t mediatime.Time, renderSize image.Point) (image.Image, error) {
	seg, ok := s.Occupant(id, t)
	if !ok {
		return nil, merry.Wrap(ErrNoSourceFrame, merry.AppendMessagef("track %d is empty at %s", id, t))
	}
	res := seg.Source.Clip.Resource
	at := seg.SourceTime(t)
	if img := res.Image(at, renderSize); img != nil {
		return img, nil
	}
	if dec, ok := res.(resource.FrameDecoder); ok {
		img, err := dec.FrameAt(ctx, at)
		if err != nil {
			return nil, merry.Wrap(ErrNoSourceFrame, merry.AppendMessagef("track %d at %s: %v", id, t, err))
		}
		return img, nil
	}
	return nil, merry.Wrap(ErrNoSourceFrame, merry.AppendMessagef("track %d: %s has no frames", id, seg.Source.Clip))
}

func (s *MemorySink) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory sink with %d tracks", len(s.tracks))
}
