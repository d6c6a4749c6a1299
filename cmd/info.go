package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/cliprec/internal/service"
	"github.com/audiolibrelab/cliprec/internal/store"
	"github.com/audiolibrelab/cliprec/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the resolved configuration and the stored clip",
	Long: `Display the resolved configuration, marking the values a profile overrides,
and describe the clip currently held in the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(ui.Out, ui.Brand("CONFIGURATION"))
		ui.KV("profile", orDefault(cfg.Profile))
		ui.KV("recorder.max_duration", cfg.Recorder.MaxDuration.String()+overrideIndicator("recorder.max_duration"))
		ui.KV("recorder.tick_interval", cfg.Recorder.TickInterval.String()+overrideIndicator("recorder.tick_interval"))
		ui.KV("audio.backend", cfg.Audio.Backend+overrideIndicator("audio.backend"))
		ui.KV("audio.sample_rate", fmt.Sprintf("%d", cfg.Audio.SampleRate)+overrideIndicator("audio.sample_rate"))
		ui.KV("audio.channels", fmt.Sprintf("%d", cfg.Audio.Channels)+overrideIndicator("audio.channels"))
		ui.KV("audio.capture_device", orDefault(cfg.Audio.CaptureDevice)+overrideIndicator("audio.capture_device"))
		ui.KV("storage.backend", cfg.Storage.Backend+overrideIndicator("storage.backend"))
		ui.KV("storage.key", cfg.Storage.Key+overrideIndicator("storage.key"))
		switch cfg.Storage.Backend {
		case "redis":
			ui.KV("storage.redis.addr", cfg.Storage.Redis.Addr+overrideIndicator("storage.redis.addr"))
		default:
			ui.KV("storage.file", cfg.Storage.File+overrideIndicator("storage.file"))
		}

		svc, err := newService(service.Deps{})
		if err != nil {
			return err
		}
		defer svc.Close()

		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, ui.Brand("STORED CLIP"))
		info, err := svc.GetSavedClipInfo(cmd.Context())
		if errors.Is(err, store.ErrNotFound) {
			ui.Info("  %s", ui.Dim("nothing stored under "+cfg.Storage.Key))
			return nil
		}
		if err != nil {
			return err
		}
		ui.KV("key", info.Key)
		ui.KV("type", info.ContentType)
		ui.KV("size", info.SizeHuman)
		ui.KV("duration", info.Duration.String())
		ui.KV("format", fmt.Sprintf("%d Hz, %d ch, %d bit", info.SampleRate, info.Channels, info.BitDepth))
		return nil
	},
}

func overrideIndicator(key string) string {
	for _, k := range cfg.Overrides {
		if k == key {
			return " " + ui.Dim("[profile]")
		}
	}
	return ""
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
