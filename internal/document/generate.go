package document

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ansel1/merry/v2"

	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
)

// InferKind guesses the clip kind from a file extension.
func InferKind(path string) ClipKind {
	switch {
	case strings.EqualFold(filepath.Ext(path), ".pdf"):
		return KindPDF
	case resource.IsImagePath(path):
		return KindImage
	default:
		return KindVideo
	}
}

// Expand turns an input path into clip specs: one per PDF page, one per image
// of a directory, or a single clip.
func Expand(path string) ([]ClipSpec, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		paths, err := resource.ImagePaths(path)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("no images in %s", path))
		}
		specs := make([]ClipSpec, len(paths))
		for i, p := range paths {
			specs[i] = ClipSpec{Kind: KindImage, Path: p}
		}
		return specs, nil
	}

	kind := InferKind(path)
	if kind != KindPDF {
		return []ClipSpec{{Kind: kind, Path: path}}, nil
	}
	n, err := resource.PDFPageCount(path)
	if err != nil {
		return nil, err
	}
	specs := make([]ClipSpec, n)
	for i := range specs {
		specs[i] = ClipSpec{Kind: KindPDF, Path: path, Page: i + 1}
	}
	return specs, nil
}

// Generate builds a project from clips with the given durations joined by tr.
func Generate(clips []ClipSpec, durations []mediatime.Time, tr TransitionSpec, audio string) (*Project, error) {
	if len(clips) != len(durations) {
		return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("%d clips, %d durations", len(clips), len(durations)))
	}
	p := &Project{
		Version:           CurrentVersion,
		DefaultTransition: &tr,
		Clips:             make([]ClipSpec, len(clips)),
	}
	for i, c := range clips {
		c.Duration = durations[i].Seconds()
		p.Clips[i] = c
	}
	if audio != "" {
		p.BackgroundAudio = &AudioSpec{Path: audio}
	}
	return p, p.Validate()
}
