package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/cliprec/internal/config"
	"github.com/audiolibrelab/cliprec/internal/service"
)

var (
	cfg          *config.Config
	cfgFile      string
	configPath   string
	pipeline     string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "cliprec",
	Short: "Record, review and store short voice clips",
	Long: `cliprec records a single voice clip of bounded length from the default
microphone, shows its waveform while recording and during playback, and
stores the clip as a data URL in a file or redis key.

Recording stops by itself when the cap (30s by default) is reached.
When -p is given without a subcommand, it acts as 'cliprec run -p ...'.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Log to stderr until the config says otherwise
		setupLogging(verboseLevel, config.LoggingConfig{})

		configPath = cfgFile
		if configPath == "" {
			if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
				configPath = config.DefaultConfigPath()
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(configPath, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logging := cfg.Logging
		if logFile != "" {
			logging.File = logFile
		}
		setupLogging(verboseLevel, logging)

		slog.Debug("Configuration loaded",
			"file", configPath,
			"profile", cfg.Profile,
			"overrides", cfg.Overrides)

		return validatePipeline()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline != "" {
			return runCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cliprec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play, s=submit (e.g., 'rps', 'rs', 'p')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated (overrides logging.file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=audio backend output, 3=max tracing")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level. When lc names a
// file, records are also written there through a rotating writer.
func setupLogging(level int, lc config.LoggingConfig) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		// Level 2 adds the audio backend's own log lines, level 3 source locations
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: level >= 3,
	}

	var out io.Writer = os.Stderr
	if lc.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
		})
	}

	handler := slog.NewTextHandler(out, opts)
	slog.SetDefault(slog.New(handler))
}

// newService builds the service for one command invocation
func newService(deps service.Deps) (*service.ClipService, error) {
	deps.MalgoDebug = verboseLevel >= 2
	svc, err := service.New(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'p': true, // play
		's': true, // submit
	}

	for _, step := range strings.ToLower(pipeline) {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, p=play, s=submit)", step)
		}
	}

	return nil
}
