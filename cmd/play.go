package cmd

import (
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the stored clip",
	Long:  `Load the clip stored under the configured key and play it to the end.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return session(cmd.Context(), "p", loadSaved)
	},
}
