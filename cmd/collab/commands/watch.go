package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/watch"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor session activity",
	Long: `Stream object joins, leaves and attribute updates for a session as
they occur.

Output Formats:
  default - Human-readable output with timestamps and decoded attributes
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch the default session
  collab watch

  # Export events as JSON
  collab watch --session lab-3 --output=json > events.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			err.Error(),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if format == watch.OutputFormatDefault {
		printer.Info("Watching session '%s' (Ctrl-C to stop)\n", cfg.Session)
	}
	if err := watch.StreamActivity(ctx, client, format, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
