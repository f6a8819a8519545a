package resource

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

// IsImagePath reports whether path has a still-image extension.
func IsImagePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImagePaths lists the still images of dir sorted by name. A file path is returned as-is.
func ImagePaths(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && IsImagePath(entry.Name()) {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ImageResource shows one still image, either decoded from a file on Prepare
// or supplied in memory.
type ImageResource struct {
	*still
	path string
}

// NewImageResource wraps an in-memory image. It is available immediately.
func NewImageResource(img image.Image, duration mediatime.Time) *ImageResource {
	r := &ImageResource{still: newStill(duration)}
	r.setImage(img)
	r.status = Available()
	return r
}

// NewImageFileResource references an image file that is decoded by Prepare.
func NewImageFileResource(path string, duration mediatime.Time) *ImageResource {
	r := &ImageResource{still: newStill(duration), path: path}
	r.status = Unavailable(nil)
	return r
}

// Path is the backing file, empty for in-memory images.
func (r *ImageResource) Path() string {
	return r.path
}

func (r *ImageResource) Prepare(ctx context.Context, progress func(float64)) *Task {
	return r.prepare(ctx, progress, func(ctx context.Context, _ func(float64)) error {
		if r.path == "" {
			return nil
		}
		img, err := decodeImageFile(r.path)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.setImage(img)
		return nil
	})
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
