package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/dyluth/collab/internal/docker"
	"github.com/dyluth/collab/internal/printer"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local session buses",
	Long:  `List every Redis container started by 'collab up' on this host.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	buses, err := dockerpkg.ListBuses(ctx, cli, "")
	if err != nil {
		return err
	}
	if len(buses) == 0 {
		printer.Info("No session buses found\n")
		printer.Println("Start one with:\n  collab up")
		return nil
	}

	printer.Printf("%-20s %-10s %s\n", "SESSION", "STATE", "REDIS")
	for _, b := range buses {
		printer.Printf("%-20s %-10s %s\n", b.Session, b.State, b.URL())
	}
	printer.Println(fmt.Sprintf("\n%d bus(es)", len(buses)))
	return nil
}
