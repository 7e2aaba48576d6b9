package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/dashboard"
	"github.com/gpxity/gpxity/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		withDashboard bool
		addr          string
		debounce      time.Duration
		keep          bool
	)
	cmd := &cobra.Command{
		Use:     "watch DIR SINK",
		GroupID: "advanced",
		Short:   "Mirror a directory of GPX files into a backend",
		Long: `Keep SINK a mirror of the GPX files in DIR until interrupted.

With --dashboard, changes and sync results are broadcast to websocket
clients:
  ws://ADDR/ws       activity_update and sync_complete messages
  http://ADDR/health
  http://ADDR/metrics`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := a.open(args[1])
			if err != nil {
				return err
			}

			config := watch.DefaultConfig()
			config.Logger = a.prefixed("[watch] ")
			config.DebounceInterval = a.cfg.Watch.Debounce
			if cmd.Flags().Changed("debounce") {
				config.DebounceInterval = debounce
			}
			if keep {
				config.SyncOptions = nil
			} else {
				config.SyncOptions = []backend.SyncOption{backend.WithRemove()}
			}

			if withDashboard {
				if !cmd.Flags().Changed("addr") {
					addr = a.cfg.Dashboard.Addr
				}
				server := dashboard.NewServer(&dashboard.Config{
					Addr:   addr,
					Logger: a.prefixed("[dashboard] "),
				})
				if err := server.Start(); err != nil {
					return fmt.Errorf("failed to start dashboard: %w", err)
				}
				defer server.Stop()
				config.Notifier = dashboard.NewHandler(server, nil)
				fmt.Fprintf(a.stdout, "Dashboard: ws://%s/ws\n", server.Addr())
			}

			d, err := watch.NewWithConfig(args[0], sink, config)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return d.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&withDashboard, "dashboard", false, "Serve live events over websocket")
	cmd.Flags().StringVar(&addr, "addr", dashboard.DefaultAddr, "Dashboard listen address")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Wait this long for files to settle")
	cmd.Flags().BoolVar(&keep, "keep", false, "Never delete from SINK")
	return cmd
}

