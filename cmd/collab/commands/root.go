package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dyluth/collab/internal/config"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/pkg/bus"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath    string
	flagSession   string
	flagRedisURL  string
	flagLogLevel  string
	flagLogFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "collab",
	Short: "collab - collaborative linear-system control experiments",
	Long: `collab runs collaborative control experiments in which several
participants jointly steer a coupled linear system towards a target.

One coordinator owns the experiment and computes outputs; each participant
controls a slice of the inputs and observes a slice of the outputs. All
processes share state through a Redis-backed session bus.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "collab.yml", "Path to collab.yml (defaults apply when missing)")
	pf.StringVarP(&flagSession, "session", "s", "", "Session name (overrides config and COLLAB_SESSION)")
	pf.StringVar(&flagRedisURL, "redis-url", "", "Redis URL (overrides config and REDIS_URL)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
}

// loadConfig loads collab.yml and applies command-line overrides on top of
// file and environment values.
func loadConfig(cmd *cobra.Command) (*config.CollabConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Fix collab.yml or pass a different file with --config"},
		)
	}

	flags := cmd.Flags()
	if flags.Changed("session") {
		cfg.Session = flagSession
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = flagRedisURL
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = flagLogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, printer.Error("invalid flags", err.Error(), nil)
	}
	return cfg, nil
}

func newLogger(cfg *config.CollabConfig) *slog.Logger {
	return logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Writer:  os.Stderr,
		NoColor: os.Getenv("NO_COLOR") != "",
	}).With("session", cfg.Session)
}

// connect opens a bus client for the configured session and checks Redis
// is reachable.
func connect(ctx context.Context, cfg *config.CollabConfig, logger *slog.Logger) (*bus.Client, error) {
	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, printer.Error("invalid Redis URL", err.Error(), nil)
	}

	client, err := bus.NewClient(opts, cfg.Session, bus.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create bus client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis: %v", err),
			map[string]string{"Session": cfg.Session, "Redis": cfg.RedisURL},
			[]string{
				fmt.Sprintf("Start a local bus:\n  collab up --session %s", cfg.Session),
				"Point --redis-url or REDIS_URL at a running Redis",
			},
		)
	}
	return client, nil
}
