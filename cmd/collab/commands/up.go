package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/dyluth/collab/internal/docker"
	"github.com/dyluth/collab/internal/printer"
	"github.com/spf13/cobra"
)

var (
	upPort  int
	upImage string
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a local session bus",
	Long: `Start a Redis container to carry one session's bus.

The container is labelled with the session name so 'collab down' can find
it again. It listens on 127.0.0.1 only.

Examples:
  # Start the bus for the default session
  collab up

  # Start a second session on another port
  collab up --session lab-3 --port 6380`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().IntVarP(&upPort, "port", "p", 0, "Host port (overrides services.redis.port)")
	upCmd.Flags().StringVar(&upImage, "image", "", "Redis image (overrides services.redis.image)")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	spec := dockerpkg.BusSpec{
		Session: cfg.Session,
		RunID:   dockerpkg.GenerateRunID(),
		Image:   cfg.Services.Redis.Image,
		Port:    cfg.Services.Redis.Port,
	}
	if cmd.Flags().Changed("port") {
		if upPort < 1 || upPort > 65535 {
			return printer.Error("invalid port", fmt.Sprintf("--port must be between 1 and 65535, got %d", upPort), nil)
		}
		spec.Port = upPort
	}
	if cmd.Flags().Changed("image") {
		spec.Image = upImage
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error(
			"Docker not available",
			err.Error(),
			[]string{"Start Docker, or point --redis-url at an existing Redis"},
		)
	}
	defer cli.Close()

	printer.Step("Starting %s for session '%s'...\n", spec.Image, spec.Session)
	b, err := dockerpkg.StartBus(ctx, cli, spec)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to start bus",
			err.Error(),
			map[string]string{"Session": spec.Session, "Port": fmt.Sprint(spec.Port)},
			[]string{
				fmt.Sprintf("Stop an existing bus:\n  collab down --session %s", spec.Session),
				"Pick a free port with --port",
			},
		)
	}

	printer.Success("Session bus running\n")
	printer.Field("container", b.Name)
	printer.Field("redis", b.URL())
	if b.URL() != cfg.RedisURL {
		printer.Info("\nConnect with --redis-url %s or REDIS_URL=%s\n", b.URL(), b.URL())
	}
	return nil
}
