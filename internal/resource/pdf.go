package resource

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

// DefaultDPI is the rasterisation density for PDF pages.
const DefaultDPI = 150

// PDFPageCount returns the number of pages in the document at path.
func PDFPageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// PDFPageResource shows one rasterised PDF page.
type PDFPageResource struct {
	*still
	path string
	page int
	dpi  int
}

// NewPDFPageResource references page (zero based) of the document at path.
func NewPDFPageResource(path string, page, dpi int, duration mediatime.Time) *PDFPageResource {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	r := &PDFPageResource{still: newStill(duration), path: path, page: page, dpi: dpi}
	r.status = Unavailable(nil)
	return r
}

// PDFPages returns one resource per page of the document, each shown for duration.
func PDFPages(path string, dpi int, duration mediatime.Time) ([]*PDFPageResource, error) {
	n, err := PDFPageCount(path)
	if err != nil {
		return nil, err
	}
	pages := make([]*PDFPageResource, n)
	for i := range pages {
		pages[i] = NewPDFPageResource(path, i, dpi, duration)
	}
	return pages, nil
}

func (r *PDFPageResource) Page() int {
	return r.page
}

func (r *PDFPageResource) Prepare(ctx context.Context, progress func(float64)) *Task {
	return r.prepare(ctx, progress, func(ctx context.Context, progress func(float64)) error {
		// Every page opens its own document so pages can be prepared in parallel.
		doc, err := fitz.New(r.path)
		if err != nil {
			return err
		}
		defer doc.Close()

		if r.page < 0 || r.page >= doc.NumPage() {
			return fmt.Errorf("page %d out of range, document has %d pages", r.page, doc.NumPage())
		}
		progress(0.1)
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := doc.ImageDPI(r.page, float64(r.dpi))
		if err != nil {
			return fmt.Errorf("render page %d: %w", r.page, err)
		}
		r.setImage(img)
		return nil
	})
}
