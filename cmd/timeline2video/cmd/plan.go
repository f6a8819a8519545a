package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/media"
	"github.com/ivlev/timeline2video/internal/renderer"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var planCmd = &cobra.Command{
	Use:   "plan [project.yaml]",
	Short: "Print the schedule of a project",
	Long: `Plan prepares the clips of a project and prints the pass-through and
transition segments the renderer would produce.

With --ffmpeg it prints an equivalent ffmpeg xfade filter graph instead,
taking the clips as inputs 0..n-1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().String("projects-dir", defaultProjectsDir, "Directory searched for the newest project")
	planCmd.Flags().Bool("ffmpeg", false, "Print an ffmpeg filter_complex instead of the segment table")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.WithComponent(slog.Default(), "plan")

	dir, _ := cmd.Flags().GetString("projects-dir")
	path, err := resolveProject(args, dir)
	if err != nil {
		return err
	}
	lp, err := openProject(cmd.Context(), cfg, path, logger)
	if err != nil {
		return err
	}
	instr, err := lp.timeline.Build()
	if err != nil {
		return err
	}

	if ffmpeg, _ := cmd.Flags().GetBool("ffmpeg"); ffmpeg {
		graph, out := renderer.XfadeGraph(filterClips(instr))
		fmt.Fprintf(cmd.OutOrStdout(), "-filter_complex %q -map %q\n", graph, out)
		return nil
	}
	return printPlan(cmd.OutOrStdout(), instr)
}

// printPlan writes one row per segment followed by the total duration.
func printPlan(w io.Writer, instr *timeline.Instruction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tKIND\tTRACKS\tEFFECT")
	for _, seg := range instr.Segments() {
		kind, effect := "pass", ""
		if seg.IsTransition() {
			kind, effect = "transition", seg.Transition.Effect.String()
		}
		tracks := strings.Join(lo.Map(seg.TrackIDs(), func(id int32, _ int) string {
			return fmt.Sprintf("#%d", id)
		}), ",")
		fmt.Fprintf(tw, "%.3f\t%.3f\t%s\t%s\t%s\n",
			seg.TimeRange.Start.Seconds(), seg.TimeRange.End().Seconds(), kind, tracks, effect)
	}
	fmt.Fprintf(tw, "total\t%.3f\t\t\t\n", instr.Duration.Seconds())
	return tw.Flush()
}

// filterClips lists the video placements in timeline order with the
// transition leaving each one.
func filterClips(instr *timeline.Instruction) []renderer.FilterClip {
	placements := instr.Placements(media.KindVideo)
	clips := make([]renderer.FilterClip, len(placements))
	for i, p := range placements {
		clips[i].Duration = p.TimeRange.Duration.Seconds()
		tr, ok := lo.Find(instr.TransitionTrackInfos, func(t timeline.TransitionTrackInfo) bool {
			return t.From.Clip == p.Clip
		})
		if ok {
			clips[i].Transition = tr.Effect
			clips[i].Overlap = tr.TimeRange.Duration.Seconds()
		}
	}
	return clips
}
