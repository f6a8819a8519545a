// Package document reads and writes YAML project files describing a timeline.
package document

import (
	"fmt"
	"strings"

	"github.com/ansel1/merry/v2"
)

// CurrentVersion is written into new projects.
const CurrentVersion = "1.0"

var ErrInvalidProject = merry.Sentinel("invalid project")

// Project is a complete timeline description.
type Project struct {
	Version           string           `yaml:"version"`
	Render            Render           `yaml:"render,omitempty"`
	DefaultTransition *TransitionSpec  `yaml:"default_transition,omitempty"`
	Transitions       []TransitionSpec `yaml:"transitions,omitempty"`
	Clips             []ClipSpec       `yaml:"clips"`
	BackgroundAudio   *AudioSpec       `yaml:"background_audio,omitempty"`
}

// Render overrides the configured output settings when set.
type Render struct {
	Width      int    `yaml:"width,omitempty"`
	Height     int    `yaml:"height,omitempty"`
	FPS        int    `yaml:"fps,omitempty"`
	Background string `yaml:"background,omitempty"`
}

// TransitionSpec is one transition; Duration is in seconds.
type TransitionSpec struct {
	Effect   string  `yaml:"effect"`
	Duration float64 `yaml:"duration"`
}

// ClipKind names the resource a clip is built from.
type ClipKind string

const (
	KindImage  ClipKind = "image"
	KindPDF    ClipKind = "pdf"
	KindQRCode ClipKind = "qrcode"
	KindVideo  ClipKind = "video"
)

// ClipSpec describes one clip. Times are in seconds.
type ClipSpec struct {
	Kind ClipKind `yaml:"kind"`
	Path string   `yaml:"path,omitempty"`
	// Page is one based; zero expands a PDF into one clip per page.
	Page    int    `yaml:"page,omitempty"`
	Content string `yaml:"content,omitempty"`

	Start    float64 `yaml:"start,omitempty"`
	Duration float64 `yaml:"duration,omitempty"`

	ContentMode string  `yaml:"content_mode,omitempty"`
	Background  string  `yaml:"background,omitempty"`
	Opacity     float64 `yaml:"opacity,omitempty"`
	// Crop is empty or "content", which trims plain margins around the
	// content before placement. CropMargin is kept around it, in pixels.
	Crop       string `yaml:"crop,omitempty"`
	CropMargin int    `yaml:"crop_margin,omitempty"`

	Video *bool `yaml:"video,omitempty"`
	Audio *bool `yaml:"audio,omitempty"`
}

// CropContent trims a clip to its detected content.
const CropContent = "content"

// AudioSpec is a looping soundtrack.
type AudioSpec struct {
	Path string `yaml:"path"`
}

// Validate checks the project for structural errors. Resource-level problems
// (missing files, bad ranges) surface when the timeline is prepared.
func (p *Project) Validate() error {
	if p.Version == "" {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessage("missing version"))
	}
	if !strings.HasPrefix(p.Version, "1.") {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("unsupported version %q", p.Version))
	}
	if len(p.Clips) == 0 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessage("no clips"))
	}
	for i, c := range p.Clips {
		if err := c.validate(); err != nil {
			return merry.Wrap(err, merry.AppendMessagef("clip %d", i))
		}
	}
	for i, tr := range p.Transitions {
		if tr.Duration < 0 {
			return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("transition %d has negative duration", i))
		}
	}
	if p.DefaultTransition != nil && p.DefaultTransition.Duration < 0 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessage("default transition has negative duration"))
	}
	if p.BackgroundAudio != nil && p.BackgroundAudio.Path == "" {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessage("background audio without path"))
	}
	return nil
}

func (c ClipSpec) validate() error {
	switch c.Kind {
	case KindImage, KindPDF, KindVideo:
		if c.Path == "" {
			return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("%s clip without path", c.Kind))
		}
	case KindQRCode:
		if c.Content == "" {
			return merry.Wrap(ErrInvalidProject, merry.AppendMessage("qrcode clip without content"))
		}
	default:
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("unknown clip kind %q", c.Kind))
	}
	if c.Start < 0 || c.Duration < 0 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessage("negative time"))
	}
	if c.Opacity < 0 || c.Opacity > 1 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("opacity %.2f outside [0, 1]", c.Opacity))
	}
	if c.Crop != "" && c.Crop != CropContent {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("crop %q", c.Crop))
	}
	if c.CropMargin < 0 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("crop margin %d", c.CropMargin))
	}
	if c.Page < 0 {
		return merry.Wrap(ErrInvalidProject, merry.AppendMessagef("page %d", c.Page))
	}
	return nil
}

func (c ClipSpec) String() string {
	switch c.Kind {
	case KindQRCode:
		return fmt.Sprintf("qrcode %q", c.Content)
	case KindPDF:
		if c.Page > 0 {
			return fmt.Sprintf("pdf %s page %d", c.Path, c.Page)
		}
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Path)
}
