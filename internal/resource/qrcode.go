package resource

import (
	"context"
	"image/color"

	"github.com/skip2/go-qrcode"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

// QRCodeResource is a generated slate showing content as a QR code.
type QRCodeResource struct {
	*still
	content    string
	size       int
	foreground color.Color
	background color.Color
}

// NewQRCodeResource renders content as a size x size QR code when prepared.
func NewQRCodeResource(content string, size int, duration mediatime.Time) *QRCodeResource {
	if size <= 0 {
		size = 512
	}
	r := &QRCodeResource{
		still:      newStill(duration),
		content:    content,
		size:       size,
		foreground: color.Black,
		background: color.White,
	}
	r.status = Unavailable(nil)
	return r
}

// SetColors changes the module and quiet-zone colours. It has no effect once prepared.
func (r *QRCodeResource) SetColors(fg, bg color.Color) {
	r.foreground, r.background = fg, bg
}

func (r *QRCodeResource) Content() string {
	return r.content
}

func (r *QRCodeResource) Prepare(ctx context.Context, progress func(float64)) *Task {
	return r.prepare(ctx, progress, func(context.Context, func(float64)) error {
		q, err := qrcode.New(r.content, qrcode.Medium)
		if err != nil {
			return err
		}
		q.ForegroundColor = r.foreground
		q.BackgroundColor = r.background
		r.setImage(q.Image(r.size))
		return nil
	})
}
