// Package media holds the media kinds and track descriptors shared by resources,
// the scheduler and the composition sink.
package media

import (
	"image"

	"github.com/orsinium-labs/enum"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

type Kind enum.Member[string]

var (
	KindVideo           = Kind{"video"}
	KindAudio           = Kind{"audio"}
	KindBackgroundAudio = Kind{"background-audio"}
	Kinds               = enum.New(KindVideo, KindAudio, KindBackgroundAudio)
)

func (k Kind) String() string {
	return k.Value
}

// IsAudio reports whether k carries sound, foreground or background.
func (k Kind) IsAudio() bool {
	return k == KindAudio || k == KindBackgroundAudio
}

// Rotation is the clockwise display rotation recorded in a video track.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// NormalizeRotation folds any multiple of 90 degrees into [0, 360).
// Values that are not multiples of 90 map to Rotate0.
func NormalizeRotation(deg int) Rotation {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	switch deg {
	case 90:
		return Rotate90
	case 180:
		return Rotate180
	case 270:
		return Rotate270
	}
	return Rotate0
}

// Track describes one elementary stream of a resource.
type Track struct {
	// Index is the position of the track among tracks of the same kind.
	Index int
	// StreamIndex is the container stream index, -1 for synthetic tracks.
	StreamIndex int
	Kind        Kind
	Codec       string
	TimeRange   mediatime.Range
	NaturalSize image.Point
	Rotation    Rotation
}

// DisplaySize returns the natural size with the rotation applied.
func (t Track) DisplaySize() image.Point {
	if t.Rotation == Rotate90 || t.Rotation == Rotate270 {
		return image.Pt(t.NaturalSize.Y, t.NaturalSize.X)
	}
	return t.NaturalSize
}
