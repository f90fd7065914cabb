package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/dyluth/collab/internal/docker"
	"github.com/dyluth/collab/internal/printer"
	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop a local session bus",
	Long: `Stop and remove the Redis container started by 'collab up' for a session.

The command does not prompt for confirmation and executes immediately.

Examples:
  collab down --session lab-3`,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	buses, err := dockerpkg.StopBus(ctx, cli, cfg.Session)
	if err != nil {
		return err
	}
	if len(buses) == 0 {
		return printer.Error(
			fmt.Sprintf("session '%s' has no bus", cfg.Session),
			fmt.Sprintf("No containers found for session '%s'.", cfg.Session),
			[]string{"Run 'collab list' to see running buses"},
		)
	}
	for _, b := range buses {
		printer.Step("Removed %s\n", b.Name)
	}
	printer.Success("Session '%s' stopped\n", cfg.Session)
	return nil
}
