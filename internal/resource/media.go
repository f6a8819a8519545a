package resource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"

	"github.com/ansel1/merry/v2"

	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// MediaResource is an audio/video file whose tracks are discovered with ffprobe
// and whose frames are decoded with ffmpeg on demand.
type MediaResource struct {
	base
	path      string
	prober    Prober
	ffmpeg    string
	requested *mediatime.Range
	tracks    map[media.Kind][]media.Track
}

// MediaOption customises a MediaResource.
type MediaOption func(*MediaResource)

// WithProber replaces the ffprobe runner.
func WithProber(p Prober) MediaOption {
	return func(r *MediaResource) { r.prober = p }
}

// WithFFmpegBinary sets the ffmpeg binary used for frame decoding.
func WithFFmpegBinary(bin string) MediaOption {
	return func(r *MediaResource) { r.ffmpeg = bin }
}

// WithSelectedRange selects part of the file. It is validated once the
// duration is known during Prepare.
func WithSelectedRange(sel mediatime.Range) MediaOption {
	return func(r *MediaResource) { r.requested = &sel }
}

// NewMediaResource references the media file at path.
func NewMediaResource(path string, opts ...MediaOption) *MediaResource {
	r := &MediaResource{
		path:   path,
		prober: FFProbe{},
		ffmpeg: "ffmpeg",
		tracks: map[media.Kind][]media.Track{},
	}
	r.status = Unavailable(nil)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MediaResource) Path() string {
	return r.path
}

func (r *MediaResource) Prepare(ctx context.Context, progress func(float64)) *Task {
	return r.prepare(ctx, progress, func(ctx context.Context, progress func(float64)) error {
		result, err := r.prober.Probe(ctx, r.path)
		if err != nil {
			return err
		}
		progress(0.5)
		return r.load(result)
	})
}

func (r *MediaResource) load(result *ProbeResult) error {
	const scale = 1000
	total, ok := parseSeconds(result.Format.Duration)
	if !ok {
		return fmt.Errorf("%s: unknown duration", r.path)
	}
	duration := mediatime.FromSeconds(total, scale)

	tracks := map[media.Kind][]media.Track{}
	var size image.Point
	for _, s := range result.Streams {
		var kind media.Kind
		switch s.CodecType {
		case "video":
			kind = media.KindVideo
		case "audio":
			kind = media.KindAudio
		default:
			continue
		}

		start, _ := parseSeconds(s.StartTime)
		d, ok := parseSeconds(s.Duration)
		if !ok {
			d = total
		}
		t := media.Track{
			Index:       len(tracks[kind]),
			StreamIndex: s.Index,
			Kind:        kind,
			Codec:       s.CodecName,
			TimeRange:   mediatime.NewRange(mediatime.FromSeconds(start, scale), mediatime.FromSeconds(d, scale)),
		}
		if kind == media.KindVideo {
			t.NaturalSize = image.Pt(s.Width, s.Height)
			t.Rotation = media.NormalizeRotation(s.rotation())
			if size == (image.Point{}) {
				size = t.DisplaySize()
			}
		}
		tracks[kind] = append(tracks[kind], t)
	}

	r.mu.RLock()
	requested := r.requested
	r.mu.RUnlock()

	selected := mediatime.NewRange(mediatime.Zero, duration)
	if requested != nil {
		if err := validateSelection(*requested, duration); err != nil {
			return err
		}
		selected = *requested
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.duration = duration
	r.selected = selected
	r.size = size
	r.tracks = tracks
	return nil
}

func (r *MediaResource) UpdateSelectedRange(sel mediatime.Range) error {
	if !r.Status().IsAvailable() {
		r.mu.Lock()
		r.requested = &sel
		r.mu.Unlock()
		return nil
	}
	return r.updateSelectedRange(sel)
}

func (r *MediaResource) Tracks(kind media.Kind) []media.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]media.Track(nil), r.tracks[kind]...)
}

func (r *MediaResource) TrackInfo(kind media.Kind, index int) (TrackInfo, error) {
	tracks := r.Tracks(kind)
	if index < 0 || index >= len(tracks) {
		return TrackInfo{}, merry.Wrap(ErrNoTrack, merry.AppendMessagef("%s track %d of %s", kind, index, r.path))
	}
	return TrackInfo{Track: tracks[index], SelectedRange: r.SelectedRange()}, nil
}

// Image returns nil: frames of a media file are decoded through FrameAt.
func (r *MediaResource) Image(mediatime.Time, image.Point) image.Image {
	return nil
}

// FrameAt decodes the video frame shown at source time at.
func (r *MediaResource) FrameAt(ctx context.Context, at mediatime.Time) (image.Image, error) {
	if !r.Status().IsAvailable() {
		return nil, merry.Wrap(ErrNotPrepared, merry.AppendMessagef("%s", r.path))
	}
	cmd := exec.CommandContext(ctx, r.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", r.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %s: %w: %s", at, err, stderr.String())
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame at %s: %w", at, err)
	}
	return img, nil
}
