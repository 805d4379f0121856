package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kestrel-app/kestrel-core/config"
	"github.com/kestrel-app/kestrel-core/logger"
	"github.com/kestrel-app/kestrel-core/manager"
	"github.com/kestrel-app/kestrel-core/transport"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "kestrelcore",
	Short: "Session and permission coordination core for Kestrel",
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kestrelcore: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kestrelcore %s\n", version)
		},
	}
}

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Manage log files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := logger.ClearLogs()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d log file(s)\n", n)
			return nil
		},
	})
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		bridgeURL  string
		debug      bool
		status     time.Duration
		transcript bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the bridge and coordinate sessions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.SetDebug(debug || cfg.Debug)
			if bridgeURL == "" {
				bridgeURL = cfg.BridgeURL
			}

			bridge, err := transport.Dial(bridgeURL)
			if err != nil {
				return err
			}
			defer bridge.Close()

			sm := manager.NewSessionManager(cfg, bridge, nil)
			coord := manager.NewCoordinator(sm, cfg.EventBuffer)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var tw *transcriptWriter
			if transcript {
				tw = newTranscriptWriter()
				defer tw.close()
			}

			go coord.Run(ctx)
			go func() {
				if err := bridge.Listen(func(ev *transport.Event) {
					if tw != nil {
						tw.record(ev)
					}
					if derr := coord.Deliver(ev); derr != nil {
						logger.Get().Warn("event dropped during shutdown", "sessionID", ev.SessionID)
					}
				}); err != nil {
					logger.Get().Error("bridge listener exited", "error", err)
					stop()
				}
			}()

			if status > 0 && isatty.IsTerminal(os.Stdout.Fd()) {
				go statusLoop(ctx, cmd.OutOrStdout(), sm, status)
			}

			<-ctx.Done()
			coord.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bridgeURL, "bridge", "", "bridge WebSocket URL (defaults to config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().DurationVar(&status, "status", 0, "print a session status table at this interval (TTY only)")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "append raw inbound events to per-session transcript logs")
	return cmd
}

func statusLoop(ctx context.Context, w io.Writer, sm *manager.SessionManager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeSessionsTable(w, sm.SessionInfos())
		case <-ctx.Done():
			return
		}
	}
}

func writeSessionsTable(w io.Writer, infos []manager.SessionInfo) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 32},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, Align: text.AlignCenter},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	tw.AppendHeader(table.Row{"Session", "Title", "Kind", "Phase", "Tools", "Prompts"})

	for _, info := range infos {
		id := info.ID
		if len(id) > 8 {
			id = id[:8]
		}
		if info.Selected {
			id = "* " + id
		}
		tw.AppendRow(table.Row{
			id,
			info.Title,
			info.Kind,
			info.Phase,
			info.Activities,
			info.Permissions,
		})
	}
	if len(infos) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "-", 0, 0})
	}

	tw.Render()
}
