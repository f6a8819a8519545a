package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/document"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/mediatime"
	"github.com/ivlev/timeline2video/internal/resource"
	"github.com/ivlev/timeline2video/internal/system"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var audioExtensions = []string{".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg"}

var initCmd = &cobra.Command{
	Use:   "init <pdf|image-dir|video>",
	Short: "Generate a project from a PDF, an image directory or a video",
	Long: `Init writes a project with one clip per PDF page or image, joined by the
configured transition.

Clip lengths vary slightly from one clip to the next and add up to the
requested duration. Without --duration the length of the soundtrack is used,
and without a soundtrack every clip gets the configured still duration.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("projects-dir", defaultProjectsDir, "Directory the project is written to")
	initCmd.Flags().String("out", "", "Project path (default is a timestamped file in the projects directory)")
	initCmd.Flags().Float64("duration", 0, "Total length in seconds (0 uses the soundtrack length)")
	initCmd.Flags().String("audio", "", "Soundtrack path")
	initCmd.Flags().String("audio-dir", "input/audio", "Directory searched for the newest soundtrack when --audio is empty")
	initCmd.Flags().Int64("seed", 0, "Seed for the clip length variation (0 picks one)")
	initCmd.Flags().String("transition", "fade", "Transition effect")
	initCmd.Flags().Duration("transition-duration", 500*time.Millisecond, "Transition length")

	bindFlag("transition.effect", initCmd.Flags(), "transition")
	bindFlag("transition.duration", initCmd.Flags(), "transition-duration")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.WithComponent(slog.Default(), "init")
	ctx := cmd.Context()

	clips, err := document.Expand(args[0])
	if err != nil {
		return err
	}

	audio, _ := cmd.Flags().GetString("audio")
	if audio == "" {
		dir, _ := cmd.Flags().GetString("audio-dir")
		if found, err := system.FindLatestFile(dir, audioExtensions...); err == nil {
			audio = found
		} else {
			logger.Debug("no soundtrack found", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}

	seconds, _ := cmd.Flags().GetFloat64("duration")
	total := mediatime.FromSeconds(seconds, 1000)
	if total.Sign() <= 0 && audio != "" {
		if total, err = soundtrackLength(ctx, cfg, audio); err != nil {
			return err
		}
	}

	seed, _ := cmd.Flags().GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	durations, err := clipDurations(cfg, clips, total, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	tr := document.TransitionSpec{Effect: cfg.Transition.Effect, Duration: cfg.Transition.Duration.Seconds()}
	p, err := document.Generate(clips, durations, tr, audio)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		dir, _ := cmd.Flags().GetString("projects-dir")
		path = document.GeneratePath(dir, time.Now())
	}
	if err := document.Write(p, path); err != nil {
		return err
	}
	logger.Info("project written",
		slog.String("path", path),
		slog.Int("clips", len(p.Clips)),
		slog.String("audio", audio),
	)
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// clipDurations spreads total over the clips. A zero total gives every still
// the configured duration and leaves videos at their full length.
func clipDurations(cfg *config.Config, clips []document.ClipSpec, total mediatime.Time, rng *rand.Rand) ([]mediatime.Time, error) {
	if lo.EveryBy(clips, func(c document.ClipSpec) bool { return c.Kind == document.KindVideo }) {
		return make([]mediatime.Time, len(clips)), nil
	}
	if total.Sign() <= 0 {
		still := mediatime.Milliseconds(cfg.Stills.Duration.Milliseconds())
		return lo.Times(len(clips), func(int) mediatime.Time { return still }), nil
	}
	overlap := mediatime.Milliseconds(cfg.Transition.Duration.Milliseconds())
	if cfg.Transition.Effect == "none" {
		overlap = mediatime.Time{}
	}
	return timeline.DistributeDurations(total, overlap, cfg.Render.FrameDuration(), len(clips), rng)
}

// soundtrackLength probes the audio file.
func soundtrackLength(ctx context.Context, cfg *config.Config, path string) (mediatime.Time, error) {
	res := resource.NewMediaResource(path,
		resource.WithProber(resource.FFProbe{Binary: cfg.FFmpeg.ProbePath}),
		resource.WithFFmpegBinary(cfg.FFmpeg.BinaryPath),
	)
	status, err := res.Prepare(ctx, nil).Wait(ctx)
	if err != nil {
		return mediatime.Time{}, err
	}
	if !status.IsAvailable() {
		return mediatime.Time{}, fmt.Errorf("soundtrack %s: %w", path, status.Reason())
	}
	return res.Duration(), nil
}
