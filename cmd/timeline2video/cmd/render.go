package cmd

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/timeline2video/internal/compositor"
	"github.com/ivlev/timeline2video/internal/export"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/renderer"
	"github.com/ivlev/timeline2video/internal/system"
)

var renderCmd = &cobra.Command{
	Use:   "render [project.yaml]",
	Short: "Render a project to video",
	Long: `Render prepares every clip of the project, composes the timeline and
streams the frames to ffmpeg.

Without an argument the newest project in the projects directory is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("projects-dir", defaultProjectsDir, "Directory searched for the newest project")
	renderCmd.Flags().StringP("output", "o", "output.mp4", "Output video path")
	renderCmd.Flags().Int("width", 1280, "Output width")
	renderCmd.Flags().Int("height", 720, "Output height")
	renderCmd.Flags().Int("fps", 30, "Output frame rate")
	renderCmd.Flags().Int("workers", 0, "Frames in flight (0 picks from CPU count and memory)")
	renderCmd.Flags().String("encoder", "", "ffmpeg video encoder (empty picks the best available)")
	renderCmd.Flags().Int("quality", 23, "Encoder quality (x264/nvenc: CRF 1-51, VideoToolbox: bitrate = Q*100kbit/s)")
	renderCmd.Flags().String("easing", "linear", "Transition easing (linear, ease)")
	renderCmd.Flags().Bool("stats", false, "Print render statistics when done")

	bindFlag("export.output", renderCmd.Flags(), "output")
	bindFlag("render.width", renderCmd.Flags(), "width")
	bindFlag("render.height", renderCmd.Flags(), "height")
	bindFlag("render.fps", renderCmd.Flags(), "fps")
	bindFlag("export.workers", renderCmd.Flags(), "workers")
	bindFlag("ffmpeg.encoder", renderCmd.Flags(), "encoder")
	bindFlag("ffmpeg.quality", renderCmd.Flags(), "quality")
	bindFlag("transition.easing", renderCmd.Flags(), "easing")
	bindFlag("export.show_stats", renderCmd.Flags(), "stats")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.WithComponent(slog.Default(), "render")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	system.InitResourceLimits(logger)

	dir, _ := cmd.Flags().GetString("projects-dir")
	path, err := resolveProject(args, dir)
	if err != nil {
		return err
	}
	lp, err := openProject(ctx, cfg, path, logger)
	if err != nil {
		return err
	}
	comp, sink, err := lp.compose(logger)
	if err != nil {
		return err
	}

	size := image.Pt(lp.render.Width, lp.render.Height)
	fd := lp.render.FrameDuration()

	c := compositor.New(compositor.RenderContext{Size: size, FrameDuration: fd},
		compositor.WithLogger(logging.WithComponent(slog.Default(), "compositor")),
		compositor.WithEasing(renderer.EasingByName(cfg.Transition.Easing)),
	)
	defer c.Close()

	workers := chooseWorkers(ctx, cfg.Export.Workers, size)
	encoder := cfg.FFmpeg.Encoder
	if encoder == "" {
		encoder = system.GetBestH264Encoder(ctx, system.FFmpegEncoders(cfg.FFmpeg.BinaryPath))
	}
	logger.Info("starting render",
		slog.String("output", cfg.Export.Output),
		slog.String("size", fmt.Sprintf("%dx%d", size.X, size.Y)),
		slog.Int("fps", lp.render.FPS),
		slog.String("duration", comp.Duration.String()),
		slog.String("encoder", encoder),
		slog.Int("workers", workers),
	)

	writer, err := export.NewFFmpegWriter(ctx, export.FFmpegOptions{
		Binary:        cfg.FFmpeg.BinaryPath,
		Output:        cfg.Export.Output,
		Size:          size,
		FrameDuration: fd,
		Duration:      comp.Duration,
		Encoder:       encoder,
		Quality:       cfg.FFmpeg.Quality,
		Audio:         export.AudioInputs(sink),
	})
	if err != nil {
		return err
	}

	exp := &export.Exporter{
		Composition:   comp,
		Renderer:      c,
		Writer:        writer,
		FrameDuration: fd,
		Workers:       workers,
		Logger:        logger,
		Progress:      progressPrinter(),
	}
	stats, runErr := exp.Run(ctx)
	fmt.Fprintln(os.Stderr)
	if closeErr := writer.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("render finished", slog.String("output", cfg.Export.Output), slog.Int("frames", stats.Frames))
	if cfg.Export.ShowStats {
		printStats(cmd, stats, c.Stats())
	}
	return nil
}

// chooseWorkers uses the configured count, or one per CPU, limited by free
// memory.
func chooseWorkers(ctx context.Context, configured int, size image.Point) int {
	workers := configured
	if workers == 0 {
		workers = system.DefaultWorkers(ctx)
	}
	frameBytes := uint64(size.X) * uint64(size.Y) * 4
	return system.ClampWorkers(workers, frameBytes, system.AvailableMemory(ctx))
}

func progressPrinter() func(done, total int) {
	return func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r[*] Rendering: %d/%d (%.1f%%)", done, total, float64(done)*100/float64(total))
	}
}

func printStats(cmd *cobra.Command, stats export.Stats, cs compositor.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "--- Render stats ---")
	fmt.Fprintf(out, "Frames:     %d\n", stats.Frames)
	fmt.Fprintf(out, "Elapsed:    %s\n", stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Throughput: %.1f fps\n", stats.FPS())
	fmt.Fprintf(out, "Compositor: %d finished, %d failed, %d cancelled\n", cs.Finished, cs.Failed, cs.Cancelled)
}
