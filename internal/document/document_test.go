package document

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/timeline2video/internal/analyzer"
	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

func testSettings() Settings {
	return Settings{
		Render:     config.RenderConfig{Width: 64, Height: 36, FPS: 30, Background: "#000000", ContentMode: "fit"},
		Transition: config.TransitionConfig{Effect: "fade", Duration: 500 * time.Millisecond},
		Stills:     config.StillsConfig{Duration: 3 * time.Second, DPI: 72, QRSize: 64},
		FFmpeg:     config.FFmpegConfig{BinaryPath: "ffmpeg", ProbePath: "ffprobe"},
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func boolPtr(b bool) *bool { return &b }

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects", "demo.yaml")
	in := &Project{
		Render:            Render{Width: 1920, Height: 1080},
		DefaultTransition: &TransitionSpec{Effect: "dissolve", Duration: 0.75},
		Clips: []ClipSpec{
			{Kind: KindQRCode, Content: "https://example.com", Duration: 4},
			{Kind: KindVideo, Path: "intro.mp4", Start: 1, Duration: 2.5, Audio: boolPtr(false)},
		},
		BackgroundAudio: &AudioSpec{Path: "music.mp3"},
	}
	require.NoError(t, Write(in, path))

	out, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, out.Version)
	assert.Equal(t, in, out)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("clips: [\n"), 0o644))
	_, err = Read(broken)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("version: \"1.0\"\n"), 0o644))
	_, err = Read(empty)
	assert.ErrorIs(t, err, ErrInvalidProject)
}

func TestValidate(t *testing.T) {
	valid := func() *Project {
		return &Project{Version: "1.0", Clips: []ClipSpec{{Kind: KindImage, Path: "a.png"}}}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Project)
	}{
		{"no version", func(p *Project) { p.Version = "" }},
		{"future version", func(p *Project) { p.Version = "2.0" }},
		{"no clips", func(p *Project) { p.Clips = nil }},
		{"unknown kind", func(p *Project) { p.Clips[0].Kind = "gif" }},
		{"image without path", func(p *Project) { p.Clips[0].Path = "" }},
		{"qrcode without content", func(p *Project) { p.Clips[0] = ClipSpec{Kind: KindQRCode} }},
		{"negative duration", func(p *Project) { p.Clips[0].Duration = -1 }},
		{"opacity", func(p *Project) { p.Clips[0].Opacity = 1.5 }},
		{"negative transition", func(p *Project) { p.Transitions = []TransitionSpec{{Effect: "fade", Duration: -1}} }},
		{"audio without path", func(p *Project) { p.BackgroundAudio = &AudioSpec{} }},
		{"unknown crop", func(p *Project) { p.Clips[0].Crop = "auto" }},
		{"negative crop margin", func(p *Project) { p.Clips[0].Crop, p.Clips[0].CropMargin = CropContent, -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidProject)
		})
	}
}

func TestProjectTimeline(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.png"))

	p := &Project{
		Version:     "1.0",
		Render:      Render{FPS: 25, Background: "#102030"},
		Transitions: []TransitionSpec{{Effect: "wipeleft", Duration: 1}},
		Clips: []ClipSpec{
			{Kind: KindImage, Path: dir, ContentMode: "fill"},
			{Kind: KindQRCode, Content: "hello", Duration: 2, Background: "color", Opacity: 0.5},
		},
	}
	tl, err := p.Timeline(testSettings())
	require.NoError(t, err)

	require.Len(t, tl.Clips, 3)
	assert.Equal(t, image.Pt(64, 36), tl.RenderSize)
	assert.True(t, tl.FrameDuration.Equal(mediatime.New(1, 25)))
	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, tl.BackgroundColor)

	proc := tl.Clips[0].PostProcessing.(*clip.BasicProcessing)
	assert.Equal(t, clip.ContentFill, proc.ContentMode)
	proc = tl.Clips[2].PostProcessing.(*clip.BasicProcessing)
	assert.Equal(t, clip.ContentFit, proc.ContentMode)
	assert.Equal(t, clip.BackgroundColor, proc.Background)
	assert.InDelta(t, 0.5, proc.Opacity, 1e-9)

	first, ok := tl.Transitions.TransitionFor(0, tl.Clips[0], tl.Clips[1])
	require.True(t, ok)
	assert.Equal(t, effects.WipeLeft, first.Effect)
	assert.True(t, first.Duration.Equal(mediatime.Seconds(1)))
	second, ok := tl.Transitions.TransitionFor(1, tl.Clips[1], tl.Clips[2])
	require.True(t, ok)
	assert.Equal(t, effects.Fade, second.Effect)
	assert.True(t, second.Duration.Equal(mediatime.Milliseconds(500)))

	require.NoError(t, tl.Prepare(context.Background(), nil))
	instr, err := tl.Build()
	require.NoError(t, err)
	// 3 + 3 + 2 seconds joined by 1 s and 0.5 s transitions.
	assert.True(t, instr.Duration.Equal(mediatime.Milliseconds(6500)), instr.Duration.String())
}

func TestProjectTimelineErrors(t *testing.T) {
	base := func() *Project {
		return &Project{Version: "1.0", Clips: []ClipSpec{{Kind: KindQRCode, Content: "x"}}}
	}

	p := base()
	p.Clips[0].ContentMode = "stretch"
	_, err := p.Timeline(testSettings())
	assert.ErrorIs(t, err, ErrInvalidProject)

	p = base()
	p.DefaultTransition = &TransitionSpec{Effect: "swirl", Duration: 1}
	_, err = p.Timeline(testSettings())
	assert.ErrorIs(t, err, effects.ErrUnknownEffect)

	p = base()
	p.Clips = append(p.Clips, ClipSpec{Kind: KindVideo, Path: "a.mp4", Start: 2})
	_, err = p.Timeline(testSettings())
	assert.ErrorIs(t, err, ErrInvalidProject)

	p = base()
	p.Clips = append(p.Clips, ClipSpec{Kind: KindImage, Path: t.TempDir()})
	_, err = p.Timeline(testSettings())
	assert.ErrorIs(t, err, ErrInvalidProject)
}

func TestBackgroundAudioClip(t *testing.T) {
	p := &Project{
		Version:         "1.0",
		Clips:           []ClipSpec{{Kind: KindQRCode, Content: "x"}},
		BackgroundAudio: &AudioSpec{Path: "music.mp3"},
	}
	tl, err := p.Timeline(testSettings())
	require.NoError(t, err)
	require.NotNil(t, tl.BackgroundAudio)
	assert.False(t, tl.BackgroundAudio.VideoEnabled)
	assert.True(t, tl.BackgroundAudio.AudioEnabled)
}

func TestExpandAndGenerate(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "1.png"))
	writePNG(t, filepath.Join(dir, "2.jpg"))

	specs, err := Expand(dir)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, KindImage, specs[0].Kind)

	specs2, err := Expand(filepath.Join(dir, "1.png"))
	require.NoError(t, err)
	assert.Equal(t, []ClipSpec{{Kind: KindImage, Path: filepath.Join(dir, "1.png")}}, specs2)

	_, err = Expand(filepath.Join(dir, "missing.mov"))
	assert.Error(t, err)

	assert.Equal(t, KindPDF, InferKind("deck.PDF"))
	assert.Equal(t, KindVideo, InferKind("clip.mov"))

	durations := []mediatime.Time{mediatime.Seconds(2), mediatime.Milliseconds(2500)}
	p, err := Generate(specs, durations, TransitionSpec{Effect: "fade", Duration: 0.5}, "music.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, p.Clips[1].Duration, 1e-9)
	assert.Equal(t, "music.mp3", p.BackgroundAudio.Path)

	_, err = Generate(specs, durations[:1], TransitionSpec{}, "")
	assert.ErrorIs(t, err, ErrInvalidProject)
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 13, 1, 0, 0, 0, time.UTC)
	older := GeneratePath(dir, now.Add(-time.Hour))
	newer := GeneratePath(dir, now)
	assert.Equal(t, filepath.Join(dir, "project_2026-02-13_01-00-00.yaml"), newer)

	for i, path := range []string{older, newer} {
		require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0o644))
		mt := now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mt, mt))
	}
	got, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestCropContentClip(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page.png"))

	p := &Project{
		Version: "1.0",
		Clips:   []ClipSpec{{Kind: KindImage, Path: dir, Crop: CropContent, CropMargin: 8}},
	}
	tl, err := p.Timeline(testSettings())
	require.NoError(t, err)
	require.Len(t, tl.Clips, 1)

	crop, ok := tl.Clips[0].PostProcessing.(*analyzer.Crop)
	require.True(t, ok)
	assert.Equal(t, 8, crop.Margin)
	assert.IsType(t, &clip.BasicProcessing{}, crop.Next)
}
