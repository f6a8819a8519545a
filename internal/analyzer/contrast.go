package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// analysisSize bounds the longer side of the image the detector works on.
const analysisSize = 512

// ContrastDetector finds blocks with Sobel edges joined by dilation.
type ContrastDetector struct {
	// MinBlockArea is in analysis pixels.
	MinBlockArea  int
	EdgeThreshold float64
	// DilateSize and DilateIterations control how far apart edges may be and
	// still join into one block.
	DilateSize       int
	DilateIterations int
}

// NewContrastDetector returns a detector tuned for text on a plain page.
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:     64,
		EdgeThreshold:    30,
		DilateSize:       5,
		DilateIterations: 2,
	}
}

func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil
	}
	gray, scale := downscaledGray(img)
	edges := sobel(gray, d.EdgeThreshold)
	edges = dilate(edges, d.DilateSize, d.DilateIterations)

	var blocks []Block
	for _, r := range components(edges) {
		if r.Dx()*r.Dy() < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{Rect: toSource(r, scale, b), Confidence: 0.7})
	}
	return blocks, nil
}

// downscaledGray converts img to an origin-based gray image no larger than
// analysisSize and returns the source pixels per analysis pixel.
func downscaledGray(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	scale := math.Max(1, float64(max(b.Dx(), b.Dy()))/analysisSize)
	w := max(3, int(float64(b.Dx())/scale))
	h := max(3, int(float64(b.Dy())/scale))
	gray := image.NewGray(image.Rect(0, 0, w, h))
	if scale == 1 {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	}
	return gray, scale
}

func toSource(r image.Rectangle, scale float64, within image.Rectangle) image.Rectangle {
	out := image.Rect(
		int(math.Floor(float64(r.Min.X)*scale)), int(math.Floor(float64(r.Min.Y)*scale)),
		int(math.Ceil(float64(r.Max.X)*scale)), int(math.Ceil(float64(r.Max.Y)*scale)),
	)
	return out.Add(within.Min).Intersect(within)
}

// sobel marks pixels whose gradient magnitude exceeds threshold with 255.
func sobel(gray *image.Gray, threshold float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := image.NewGray(gray.Rect)
	at := func(x, y int) float64 { return float64(gray.Pix[y*gray.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) - 2*at(x-1, y) + 2*at(x+1, y) - at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if math.Hypot(gx, gy) > threshold {
				edges.Pix[y*edges.Stride+x] = 255
			}
		}
	}
	return edges
}

// dilate grows marked pixels by size/2 in every direction, iterations times.
func dilate(img *image.Gray, size, iterations int) *image.Gray {
	half := size / 2
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for range iterations {
		out := image.NewGray(img.Rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if img.Pix[y*img.Stride+x] == 0 {
					continue
				}
				for dy := max(0, y-half); dy <= min(h-1, y+half); dy++ {
					row := out.Pix[dy*out.Stride:]
					for dx := max(0, x-half); dx <= min(w-1, x+half); dx++ {
						row[dx] = 255
					}
				}
			}
		}
		img = out
	}
	return img
}

// components returns the bounding boxes of 4-connected marked regions.
func components(img *image.Gray) []image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	visited := make([]bool, w*h)
	var rects []image.Rectangle
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || img.Pix[y*img.Stride+x] == 0 {
				continue
			}
			r := image.Rect(x, y, x+1, y+1)
			stack = append(stack[:0], image.Pt(x, y))
			visited[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, n := range [4]image.Point{image.Pt(p.X+1, p.Y), image.Pt(p.X-1, p.Y), image.Pt(p.X, p.Y+1), image.Pt(p.X, p.Y-1)} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h {
						continue
					}
					i := n.Y*w + n.X
					if visited[i] || img.Pix[n.Y*img.Stride+n.X] == 0 {
						continue
					}
					visited[i] = true
					stack = append(stack, n)
				}
			}
			rects = append(rects, r)
		}
	}
	return rects
}
