package export

import (
	"context"
	"image"
	"sync"
)

// MemoryWriter keeps copies of the written frames.
type MemoryWriter struct {
	mu      sync.Mutex
	Frames  []*image.RGBA
	Indexes []int
}

func (w *MemoryWriter) WriteFrame(_ context.Context, index int, frame *image.RGBA) error {
	cp := image.NewRGBA(frame.Rect)
	copy(cp.Pix, frame.Pix)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Frames = append(w.Frames, cp)
	w.Indexes = append(w.Indexes, index)
	return nil
}
