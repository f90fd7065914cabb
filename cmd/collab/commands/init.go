package commands

import (
	"fmt"

	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new collab project",
	Long: `Initialize a new collab project with a default configuration and an
example experiment.

Creates:
  • collab.yml - Session, bus and logging configuration
  • experiments/pilot.yml - A two-participant experiment with one training
    model and two experiment models

Use --force to reinitialize an existing project (WARNING: overwrites existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (overwrites collab.yml and the example experiment)")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Project directory")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := scaffold.Initialize(initDir, forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	printer.Success("Successfully initialized collab project!\n")
	printer.Println("\nCreated:")
	for _, path := range created {
		printer.Printf("  ✓ %s\n", path)
	}
	printer.Println("\nNext steps:")
	printer.Println("  1. Start a local bus:          collab up")
	printer.Printf("  2. Check the experiment:      collab validate %s\n", scaffold.ExperimentFile)
	printer.Println("  3. Run the coordinator:       collab coordinator")
	printer.Println("  4. Join each participant:     collab participant --index 0")
	return nil
}
