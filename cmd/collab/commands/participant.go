package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dyluth/collab/internal/config"
	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/participant"
	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/internal/watch"
	"github.com/spf13/cobra"
)

var (
	partIndex            int
	partConstantFeedback bool
	partWait             time.Duration
)

var participantCmd = &cobra.Command{
	Use:   "participant",
	Short: "Join a session as a participant",
	Long: `Join a session as the participant at the given index.

The participant follows the first coordinator it discovers. For every model
it shows the inputs and outputs assigned to this index, publishes input
changes, and marks the design ready on submit.

Console commands:
  set <k> <value>  set local input k
  submit           mark the current design ready
  cancel           withdraw a submitted design
  status           show the current trial
  quit             leave the session`,
}

func init() {
	participantCmd.RunE = runParticipant
	f := participantCmd.Flags()
	f.IntVarP(&partIndex, "index", "i", -1, "Participant index (overrides config and COLLAB_INDEX)")
	f.BoolVar(&partConstantFeedback, "constant-feedback", true, "Lock inputs after each change until the next output arrives")
	f.DurationVar(&partWait, "wait", 0, "Wait up to this long for a coordinator before joining (0 = don't wait)")
	rootCmd.AddCommand(participantCmd)
}

// participantIndex resolves the index from flags and config.
func participantIndex(cmd *cobra.Command, cfg *config.CollabConfig) (int, error) {
	if cmd.Flags().Changed("index") {
		if partIndex < 0 {
			return 0, printer.Error("invalid index", fmt.Sprintf("--index must be >= 0, got %d", partIndex), nil)
		}
		return partIndex, nil
	}
	if cfg.Participant.Index != nil {
		return *cfg.Participant.Index, nil
	}
	return 0, printer.Error(
		"participant index required",
		"Every participant must claim a distinct index.",
		[]string{
			"Pass it on the command line:\n  collab participant --index 0",
			fmt.Sprintf("Or set %s or participant.index in collab.yml", config.EnvIndex),
		},
	)
}

func runParticipant(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	index, err := participantIndex(cmd, cfg)
	if err != nil {
		return err
	}
	constantFeedback := *cfg.Participant.ConstantFeedback
	if cmd.Flags().Changed("constant-feedback") {
		constantFeedback = partConstantFeedback
	}
	logger := newLogger(cfg).With("index", index)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if partWait > 0 {
		printer.Info("Waiting for a coordinator in session '%s'...\n", cfg.Session)
		id, err := watch.PollForObject(ctx, client, protocol.ObjectCoordinator, partWait)
		if err != nil {
			return printer.Error("no coordinator", err.Error(), []string{
				fmt.Sprintf("Start one with:\n  collab coordinator --session %s", cfg.Session),
			})
		}
		printer.Success("Found coordinator %s\n", id)
	}

	sess, err := client.Join(ctx, protocol.ObjectParticipant)
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}
	defer sess.Leave(context.Background())

	if err := sess.Publish(protocol.ParticipantAttributes...); err != nil {
		return err
	}
	if err := sess.Subscribe(protocol.ObjectCoordinator, protocol.CoordinatorAttributes...); err != nil {
		return err
	}

	p := participant.New(sess, participant.WithLogger(logger))
	// The index must be visible before the coordinator discovers us.
	if err := p.ClaimIndex(ctx, index); err != nil {
		return err
	}
	agent := participant.NewAgent(p, participant.AgentConfig{
		ConstantFeedback: constantFeedback,
		Logger:           logger,
		Notify:           printAgentEvent,
	})

	if err := sess.Start(ctx, p); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	go agent.Run(ctx)

	printer.Success("Participant %d joined session '%s' as %s\n", index, cfg.Session, sess.ID())
	return runConsole(ctx, os.Stdin, fmt.Sprintf("participant %d", index), func(ctx context.Context, c consoleCommand) error {
		return participantCommand(ctx, agent, c)
	})
}

func participantCommand(ctx context.Context, agent *participant.Agent, c consoleCommand) error {
	switch c.name {
	case "set":
		if len(c.args) != 2 {
			return fmt.Errorf("usage: set <k> <value>")
		}
		k, err := strconv.Atoi(c.args[0])
		if err != nil {
			return fmt.Errorf("invalid input number %q", c.args[0])
		}
		v, err := strconv.ParseFloat(c.args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", c.args[1])
		}
		return agent.Set(ctx, k, v)
	case "submit":
		if err := agent.Submit(ctx); err != nil {
			return err
		}
		printer.Info("Submitted, waiting for output\n")
	case "cancel":
		return agent.Cancel(ctx)
	case "status", "s":
		printAgentStatus(agent.Status())
	case "help", "?":
		printer.Println(participantCmd.Long)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", c.name)
	}
	return nil
}

func printAgentEvent(ev participant.Event, st participant.AgentStatus) {
	switch ev.Kind {
	case participant.EventCoordinatorAdded:
		if ev.Coordinator.ID == st.Coordinator {
			printer.Success("\nFollowing coordinator %s\n", st.Coordinator)
		}
	case participant.EventCoordinatorRemoved:
		if st.Coordinator == "" {
			printer.Warning("\nCoordinator %s left\n", ev.Coordinator.ID)
		}
	case participant.EventModelModified:
		if ev.Coordinator.ID != st.Coordinator {
			return
		}
		printer.Step("\n%s\n", st.ActiveModel)
		if st.Mode == participant.AgentInitialized.String() {
			printAgentStatus(st)
		}
	case participant.EventOutputModified:
		if ev.Coordinator.ID != st.Coordinator {
			return
		}
		printer.Println()
		printer.Field("output", model.FormatVector(st.View.Output, 3))
		if st.Mode == participant.AgentSolved.String() {
			printer.Success("Solved!\n")
		}
	}
}

func printAgentStatus(st participant.AgentStatus) {
	printer.Field("mode", st.Mode)
	printer.Field("model", st.ActiveModel)
	if len(st.View.InputLabels) == 0 && len(st.View.OutputLabels) == 0 {
		return
	}
	for k, label := range st.View.InputLabels {
		v := 0.0
		if k < len(st.Input) {
			v = st.Input[k]
		}
		printer.Field(fmt.Sprintf("[%d] %s", k, label), strconv.FormatFloat(v, 'f', 3, 64))
	}
	for k, label := range st.View.OutputLabels {
		line := ""
		if k < len(st.View.Output) {
			line = strconv.FormatFloat(st.View.Output[k], 'f', 3, 64)
		}
		if k < len(st.View.Target) {
			line += " -> " + strconv.FormatFloat(st.View.Target[k], 'f', 3, 64)
		}
		printer.Field(label, line)
	}
	if st.Ready {
		printer.Info("  submitted\n")
	}
}
