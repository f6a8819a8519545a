package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"

	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

// AudioInput is one piece of audio cut from a file and delayed to its place
// on the timeline.
type AudioInput struct {
	Path   string
	Source mediatime.Range
	At     mediatime.Time
}

// FFmpegOptions configures an FFmpegWriter.
type FFmpegOptions struct {
	Binary        string
	Output        string
	Size          image.Point
	FrameDuration mediatime.Time
	Duration      mediatime.Time
	Encoder       string
	Quality       int
	Audio         []AudioInput
}

// FFmpegWriter streams raw RGBA frames to an ffmpeg process.
type FFmpegWriter struct {
	opts   FFmpegOptions
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

// NewFFmpegWriter starts ffmpeg. The process is killed when ctx ends.
func NewFFmpegWriter(ctx context.Context, opts FFmpegOptions) (*FFmpegWriter, error) {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	w := &FFmpegWriter{opts: opts}
	w.cmd = exec.CommandContext(ctx, opts.Binary, w.Args()...)
	w.cmd.Stderr = &w.stderr

	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	w.stdin = stdin
	if err := w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return w, nil
}

// Args is the ffmpeg command line without the binary.
func (w *FFmpegWriter) Args() []string {
	o := w.opts
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", o.Size.X, o.Size.Y),
		"-framerate", frameRate(o.FrameDuration),
		"-i", "-",
	}
	for _, a := range o.Audio {
		args = append(args,
			"-ss", seconds(a.Source.Start),
			"-t", seconds(a.Source.Duration),
			"-i", a.Path,
		)
	}

	args = append(args, "-map", "0:v")
	if graph := audioGraph(o.Audio); graph != "" {
		args = append(args, "-filter_complex", graph, "-map", "[aout]", "-c:a", "aac")
	}
	if o.Duration.Sign() > 0 {
		args = append(args, "-t", seconds(o.Duration))
	}

	encoder := o.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p")
	args = append(args, qualityArgs(encoder, o.Quality)...)
	return append(args, o.Output)
}

// qualityArgs maps one quality knob onto the rate control of each encoder.
func qualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// kbit/s: 75 -> 7.5 Mbit/s
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default:
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func audioGraph(inputs []AudioInput) string {
	n := len(inputs)
	if n == 0 {
		return ""
	}
	var b strings.Builder
	for i, a := range inputs {
		ms := int64(a.At.Seconds()*1000 + 0.5)
		fmt.Fprintf(&b, "[%d:a]adelay=%d:all=1[a%d];", i+1, ms, i)
	}
	for i := range inputs {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "amix=inputs=%d:duration=longest:normalize=0[aout]", n)
	return b.String()
}

func frameRate(fd mediatime.Time) string {
	if fd.Sign() <= 0 || fd.Value == 0 {
		return "30"
	}
	return fmt.Sprintf("%d/%d", fd.Scale, fd.Value)
}

func seconds(t mediatime.Time) string {
	return fmt.Sprintf("%.3f", t.Seconds())
}

func (w *FFmpegWriter) WriteFrame(_ context.Context, _ int, frame *image.RGBA) error {
	return writeRawRGBA(w.stdin, frame)
}

// Close flushes the stream and waits for ffmpeg to finish the file.
func (w *FFmpegWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return fmt.Errorf("close stdin: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, w.stderr.String())
	}
	return nil
}

func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	rgba := img
	if rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rectangle{Max: bounds.Size()})
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

// pathResource is implemented by file-backed resources.
type pathResource interface {
	Path() string
}

// AudioInputs lists the audio segments of the sink that come from files, in
// track order.
func AudioInputs(sink *composition.MemorySink) []AudioInput {
	var inputs []AudioInput
	for _, id := range sink.TrackIDs() {
		kind, _ := sink.Track(id)
		if !kind.IsAudio() {
			continue
		}
		for _, seg := range sink.Segments(id) {
			pr, ok := seg.Source.Clip.Resource.(pathResource)
			if !ok {
				continue
			}
			inputs = append(inputs, AudioInput{Path: pr.Path(), Source: seg.SourceRange, At: seg.Target.Start})
		}
	}
	return inputs
}
