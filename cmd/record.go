package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a clip from the microphone and store it",
	Long: `Record a clip from the configured capture device. Recording stops when
Enter or Ctrl+C is pressed, or when the cap is reached. The clip is then
stored under the configured key unless --no-submit is given, in which
case it is played back once instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noSubmit, _ := cmd.Flags().GetBool("no-submit")

		steps := "rs"
		if noSubmit {
			steps = "rp"
		}
		slog.Info("Record command started", "steps", steps, "cap", cfg.Recorder.MaxDuration)

		return session(cmd.Context(), steps, nil)
	},
}

func init() {
	recordCmd.Flags().Bool("no-submit", false, "play the clip back instead of storing it")
}
