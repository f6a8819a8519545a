package timeline

import (
	"math/rand"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"

	"github.com/ivlev/timeline2video/internal/mediatime"
)

// maxVariation is how much a clip may differ from its predecessor.
const maxVariation = 0.15

// DistributeDurations splits a target timeline length over count clips joined
// by transitions of length overlap. Each clip varies by up to 15% from the one
// before it, no clip is shorter than 1.1x the overlap, and every duration is
// aligned to frame. The clip durations add up to total + (count-1)*overlap so
// the built timeline lasts total.
func DistributeDurations(total, overlap, frame mediatime.Time, count int, rng *rand.Rand) ([]mediatime.Time, error) {
	if count <= 0 {
		return nil, merry.Wrap(ErrNoClips)
	}
	if total.Sign() <= 0 || overlap.Sign() < 0 {
		return nil, invalidDuration("total %s, overlap %s", total, overlap)
	}
	if frame.Sign() <= 0 {
		frame = DefaultFrameDuration
	}

	a := total.Seconds()
	f := overlap.Seconds()
	clipsTotal := a + float64(count-1)*f

	durations := make([]float64, count)
	durations[0] = clipsTotal / float64(count) * (1 + (rng.Float64()*2-1)*maxVariation)
	for i := 1; i < count; i++ {
		durations[i] = durations[i-1] * (1 + (rng.Float64()*2-1)*maxVariation)
		durations[i] = lo.Max([]float64{durations[i], f * 1.1})
	}

	scale := clipsTotal / lo.Sum(durations)
	out := make([]mediatime.Time, count)
	var placed mediatime.Time
	for i, d := range durations {
		if i == count-1 {
			// The last clip absorbs the frame rounding of the others.
			out[i] = mediatime.FromSeconds(clipsTotal, frame.Scale).Sub(placed)
			break
		}
		out[i] = alignToFrame(d*scale, frame)
		placed = placed.Add(out[i])
	}
	for i, d := range out {
		if d.Sign() <= 0 || (overlap.Sign() > 0 && !overlap.Before(d)) {
			return nil, invalidDuration("clip %d would last %s with overlap %s", i, d, overlap)
		}
	}
	return out, nil
}

func alignToFrame(sec float64, frame mediatime.Time) mediatime.Time {
	frames := int64(sec/frame.Seconds() + 0.5)
	return mediatime.New(frame.Value*frames, frame.Scale)
}
