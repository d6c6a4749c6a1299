package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/cliprec/internal/service"
	"github.com/audiolibrelab/cliprec/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute pipeline steps",
	Long: `Execute the specified pipeline steps in order. Use -p to specify which steps to run:
r records a clip, p plays the current clip to its end, s stores it.

With --load, the stored clip is loaded first, so 'run -p p --load' replays it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rps)")
		}
		steps := strings.ToLower(pipeline)

		var prepare func(context.Context, *service.ClipService) error
		if load, _ := cmd.Flags().GetBool("load"); load {
			prepare = loadSaved
		}

		ui.Info("Pipeline: %s", ui.Val(describePipeline(steps)))
		if err := session(cmd.Context(), steps, prepare); err != nil {
			return err
		}
		ui.Success("Pipeline completed")
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("load", false, "load the stored clip before the first step")
}

func loadSaved(ctx context.Context, svc *service.ClipService) error {
	info, err := svc.LoadSaved(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored clip: %w", err)
	}
	ui.Info("Loaded %s (%s, %s)", ui.Key(info.Key), info.Duration, info.SizeHuman)
	return nil
}

func describePipeline(steps string) string {
	names := map[rune]string{'r': "record", 'p': "play", 's': "submit"}
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		parts = append(parts, names[step])
	}
	return strings.Join(parts, " → ")
}
