package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivlev/timeline2video/internal/composition"
	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/document"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// defaultProjectsDir is where init writes projects and render looks for the
// newest one.
const defaultProjectsDir = "projects"

// loadedProject is a project whose clips are prepared and scheduled.
type loadedProject struct {
	path     string
	project  *document.Project
	render   config.RenderConfig
	timeline *timeline.Timeline
}

// resolveProject returns args[0] or the newest project in dir.
func resolveProject(args []string, dir string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	path, err := document.FindLatest(dir)
	if err != nil {
		return "", fmt.Errorf("no project given and none found in %s: %w", dir, err)
	}
	return path, nil
}

// openProject reads the project at path and prepares every clip.
func openProject(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (*loadedProject, error) {
	p, err := document.Read(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded project", slog.String("path", path), slog.Int("clips", len(p.Clips)))

	tl, err := p.Timeline(document.SettingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	done := logging.TimedOperation(ctx, logger, "prepare clips")
	err = tl.Prepare(ctx, func(n, total int) {
		logger.Debug("clip prepared", slog.Int("done", n), slog.Int("total", total))
	})
	done()
	if err != nil {
		return nil, err
	}

	return &loadedProject{
		path:     path,
		project:  p,
		render:   p.RenderSettings(cfg.Render),
		timeline: tl,
	}, nil
}

// compose schedules the timeline onto a fresh in-memory sink.
func (lp *loadedProject) compose(logger *slog.Logger) (*composition.Result, *composition.MemorySink, error) {
	sink := composition.NewMemorySink()
	comp, err := composition.Compose(lp.timeline, sink, logger)
	if err != nil {
		return nil, nil, err
	}
	return comp, sink, nil
}
