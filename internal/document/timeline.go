package document

import (
	"image"
	"image/color"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"

	"github.com/ivlev/timeline2video/internal/analyzer"
	"github.com/ivlev/timeline2video/internal/clip"
	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// timeScale is the timescale of times read from a project.
const timeScale = 1000

// Settings fill in what a project leaves unset.
type Settings struct {
	Render     config.RenderConfig
	Transition config.TransitionConfig
	Stills     config.StillsConfig
	FFmpeg     config.FFmpegConfig
}

// SettingsFromConfig takes the project defaults from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{Render: cfg.Render, Transition: cfg.Transition, Stills: cfg.Stills, FFmpeg: cfg.FFmpeg}
}

func seconds(s float64) mediatime.Time {
	return mediatime.FromSeconds(s, timeScale)
}

func durationTime(d time.Duration) mediatime.Time {
	return mediatime.Milliseconds(d.Milliseconds())
}

// RenderSettings merges the project render block over s.
func (p *Project) RenderSettings(s config.RenderConfig) config.RenderConfig {
	if p.Render.Width > 0 {
		s.Width = p.Render.Width
	}
	if p.Render.Height > 0 {
		s.Height = p.Render.Height
	}
	if p.Render.FPS > 0 {
		s.FPS = p.Render.FPS
	}
	if p.Render.Background != "" {
		s.Background = p.Render.Background
	}
	return s
}

// Timeline builds the clips and transitions the project describes. Resources
// are created but not prepared.
func (p *Project) Timeline(s Settings) (*timeline.Timeline, error) {
	render := p.RenderSettings(s.Render)
	bg, err := config.ParseColor(render.Background)
	if err != nil {
		return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("background: %v", err))
	}

	var clips []*clip.Clip
	for i, spec := range p.Clips {
		built, err := p.buildClips(spec, s, render, bg)
		if err != nil {
			return nil, merry.Wrap(err, merry.AppendMessagef("clip %d (%s)", i, spec))
		}
		clips = append(clips, built...)
	}

	tl := timeline.New(clips...)
	tl.RenderSize = image.Pt(render.Width, render.Height)
	tl.FrameDuration = render.FrameDuration()
	tl.BackgroundColor = bg

	provider, err := p.transitions(s.Transition)
	if err != nil {
		return nil, err
	}
	tl.Transitions = provider

	if p.BackgroundAudio != nil {
		res := resource.NewMediaResource(p.BackgroundAudio.Path,
			resource.WithProber(resource.FFProbe{Binary: s.FFmpeg.ProbePath}),
			resource.WithFFmpegBinary(s.FFmpeg.BinaryPath),
		)
		music := clip.New(res)
		music.VideoEnabled = false
		tl.BackgroundAudio = music
	}
	return tl, nil
}

// transitions uses the per-boundary list, falling back to the project default
// and then to the configured transition.
func (p *Project) transitions(cfg config.TransitionConfig) (timeline.TransitionProvider, error) {
	fallback := timeline.Transition{Duration: durationTime(cfg.Duration)}
	effect, err := effects.Lookup(cfg.Effect)
	if err != nil {
		return nil, err
	}
	fallback.Effect = effect
	if p.DefaultTransition != nil {
		if fallback, err = toTransition(*p.DefaultTransition); err != nil {
			return nil, err
		}
	}

	list := make(timeline.TransitionList, len(p.Transitions))
	for i, spec := range p.Transitions {
		if list[i], err = toTransition(spec); err != nil {
			return nil, merry.Wrap(err, merry.AppendMessagef("transition %d", i))
		}
	}
	return timeline.ProviderFunc(func(index int, from, to *clip.Clip) (timeline.Transition, bool) {
		if tr, ok := list.TransitionFor(index, from, to); ok {
			return tr, true
		}
		return fallback, true
	}), nil
}

func toTransition(spec TransitionSpec) (timeline.Transition, error) {
	effect, err := effects.Lookup(spec.Effect)
	if err != nil {
		return timeline.Transition{}, err
	}
	return timeline.Transition{Effect: effect, Duration: seconds(spec.Duration)}, nil
}

func (p *Project) buildClips(spec ClipSpec, s Settings, render config.RenderConfig, bg color.RGBA) ([]*clip.Clip, error) {
	stillDuration := durationTime(s.Stills.Duration)
	if spec.Duration > 0 {
		stillDuration = seconds(spec.Duration)
	}

	var resources []resource.Resource
	switch spec.Kind {
	case KindImage:
		paths, err := resource.ImagePaths(spec.Path)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("no images in %s", spec.Path))
		}
		for _, path := range paths {
			resources = append(resources, resource.NewImageFileResource(path, stillDuration))
		}
	case KindPDF:
		if spec.Page > 0 {
			resources = append(resources, resource.NewPDFPageResource(spec.Path, spec.Page-1, s.Stills.DPI, stillDuration))
			break
		}
		pages, err := resource.PDFPages(spec.Path, s.Stills.DPI, stillDuration)
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			resources = append(resources, page)
		}
	case KindQRCode:
		resources = append(resources, resource.NewQRCodeResource(spec.Content, s.Stills.QRSize, stillDuration))
	case KindVideo:
		opts := []resource.MediaOption{
			resource.WithProber(resource.FFProbe{Binary: s.FFmpeg.ProbePath}),
			resource.WithFFmpegBinary(s.FFmpeg.BinaryPath),
		}
		switch {
		case spec.Duration > 0:
			opts = append(opts, resource.WithSelectedRange(mediatime.NewRange(seconds(spec.Start), seconds(spec.Duration))))
		case spec.Start > 0:
			return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessage("start without duration"))
		}
		resources = append(resources, resource.NewMediaResource(spec.Path, opts...))
	}

	proc, err := processing(spec, render, bg)
	if err != nil {
		return nil, err
	}
	return lo.Map(resources, func(res resource.Resource, _ int) *clip.Clip {
		c := clip.New(res)
		c.PostProcessing = proc
		if spec.Crop == CropContent {
			c.PostProcessing = analyzer.NewCrop(analyzer.NewContrastDetector(), spec.CropMargin, proc)
		}
		if spec.Video != nil {
			c.VideoEnabled = *spec.Video
		}
		if spec.Audio != nil {
			c.AudioEnabled = *spec.Audio
		}
		return c
	}), nil
}

func processing(spec ClipSpec, render config.RenderConfig, bg color.RGBA) (*clip.BasicProcessing, error) {
	proc := clip.DefaultProcessing()

	modeName := spec.ContentMode
	if modeName == "" {
		modeName = render.ContentMode
	}
	if modeName != "" {
		mode := clip.ContentModes.Parse(modeName)
		if mode == nil {
			return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("content mode %q", modeName))
		}
		proc.ContentMode = *mode
	}

	if spec.Background != "" {
		mode := clip.BackgroundModes.Parse(spec.Background)
		if mode == nil {
			return nil, merry.Wrap(ErrInvalidProject, merry.AppendMessagef("background %q", spec.Background))
		}
		proc.Background = *mode
		proc.BackgroundColor = bg
	}
	proc.Opacity = spec.Opacity
	return proc, nil
}
