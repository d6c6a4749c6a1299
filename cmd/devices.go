package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/ui"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available capture devices",
	Long:    `List the capture devices visible to the configured audio backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := audio.NewInputDevice(cfg.Audio, verboseLevel >= 2)
		devices, err := audio.ListCaptureDevices(input)
		if err != nil {
			return fmt.Errorf("failed to list capture devices: %w", err)
		}

		fmt.Fprintf(ui.Out, "%s %s\n\n", ui.Brand("Capture devices"), ui.Dim(fmt.Sprintf("(%s, backend %s)", runtime.GOOS, cfg.Audio.Backend)))
		if len(devices) == 0 {
			ui.Warn("No capture devices found")
			return nil
		}
		for i, d := range devices {
			name := d.Name
			if d.IsDefault {
				name += " " + ui.Dim("[default]")
			}
			fmt.Fprintf(ui.Out, "  %d. %s\n", i+1, name)
		}

		fmt.Fprintf(ui.Out, "\nBackends: %v\n", audio.GetAvailableBackends())
		fmt.Fprintf(ui.Out, "Select one with audio.capture_device (substring match), e.g. %s\n", ui.Val(`capture_device: "USB"`))
		return nil
	},
}
