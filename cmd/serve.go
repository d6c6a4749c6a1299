package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/cliprec/internal/server"
	"github.com/audiolibrelab/cliprec/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the cliprec HTTP server to control the recorder remotely.
State changes and notices are streamed on /ws, Prometheus metrics are served
on /metrics and the current waveform frame on /waveform.png.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		svc, err := newService(service.Deps{})
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(svc, addr, svc.Metrics())
		slog.Info("cliprec web server starting", "addr", addr, "config", configPath)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return svc.Run(ctx)
		})
		g.Go(func() error {
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address (overrides server.addr)")
}
