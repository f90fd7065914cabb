package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/collab/internal/coordinator"
	"github.com/dyluth/collab/internal/experiment"
	"github.com/dyluth/collab/internal/health"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/spf13/cobra"
)

var (
	coordExperiment       string
	coordConstantFeedback bool
	coordTrialLog         string
	coordHealthAddr       string
	coordSeed             int64
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the experiment coordinator",
	Long: `Run the coordinator for a session.

The coordinator opens an experiment, waits for participants to claim their
indices, and steps through the training and experiment models. It computes
outputs from the participants' inputs and pushes them back until every
output is within tolerance of its target.

Console commands:
  next            advance to the next model
  end-training    leave the training phase and start the experiment models
  reset           return the experiment to its ready phase
  open <file>     open a different experiment definition
  close           close the experiment
  comment <text>  add a comment to the trial log
  status          show the current trial
  quit            leave the session`,
}

func init() {
	coordinatorCmd.RunE = runCoordinator
	f := coordinatorCmd.Flags()
	f.StringVarP(&coordExperiment, "experiment", "e", "", "Experiment definition to open at startup")
	f.BoolVar(&coordConstantFeedback, "constant-feedback", true, "Recompute outputs on every input change (--constant-feedback=false waits for every participant to submit)")
	f.StringVar(&coordTrialLog, "trial-log", "", "JSONL trial log path")
	f.StringVar(&coordHealthAddr, "health-addr", "", "Health server address (\"-\" disables it)")
	f.Int64Var(&coordSeed, "seed", 0, "Seed for shuffling experiment models (0 = random)")
	rootCmd.AddCommand(coordinatorCmd)
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cc := cfg.Coordinator
	if cmd.Flags().Changed("experiment") {
		cc.Experiment = coordExperiment
	}
	if cmd.Flags().Changed("constant-feedback") {
		cc.ConstantFeedback = &coordConstantFeedback
	}
	if cmd.Flags().Changed("trial-log") {
		cc.TrialLog = coordTrialLog
	}
	if cmd.Flags().Changed("health-addr") {
		cc.HealthAddr = coordHealthAddr
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exp *experiment.Experiment
	if cc.Experiment != "" {
		if exp, err = openExperiment(cc.Experiment); err != nil {
			return err
		}
	}

	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var trialLog *logging.TrialLog
	if cc.TrialLog != "" {
		if trialLog, err = logging.OpenTrialLog(cc.TrialLog); err != nil {
			return err
		}
		defer trialLog.Close()
	}

	sess, err := client.Join(ctx, protocol.ObjectCoordinator)
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}
	defer sess.Leave(context.Background())

	if err := sess.Publish(protocol.CoordinatorAttributes...); err != nil {
		return err
	}
	if err := sess.Subscribe(protocol.ObjectParticipant, protocol.ParticipantAttributes...); err != nil {
		return err
	}

	coord := coordinator.New(sess, coordinator.WithLogger(logger))
	ctrl := coordinator.NewController(coord, coordinator.ControllerConfig{
		ConstantFeedback: *cc.ConstantFeedback,
		TrialLog:         trialLog,
		Logger:           logger,
		Notify:           printMembership,
	})

	// Publish the initial state before participants are discovered.
	if exp != nil {
		err = ctrl.Open(ctx, exp)
	} else {
		err = ctrl.Close(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to publish initial state: %w", err)
	}

	if err := sess.Start(ctx, coord); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	go ctrl.Run(ctx)

	if cc.HealthAddr != "-" {
		hs := health.NewServer(cc.HealthAddr, client, func() any { return ctrl.Status() }, logger)
		if err := hs.Start(); err != nil {
			printer.Warning("health server disabled: %v\n", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				hs.Shutdown(shutdownCtx)
			}()
		}
	}

	printer.Success("Coordinator joined session '%s' as %s\n", cfg.Session, sess.ID())
	return runConsole(ctx, os.Stdin, "coordinator", func(ctx context.Context, c consoleCommand) error {
		return coordinatorCommand(ctx, ctrl, c)
	})
}

func coordinatorCommand(ctx context.Context, ctrl *coordinator.Controller, c consoleCommand) error {
	switch c.name {
	case "next", "n":
		md, err := ctrl.Advance(ctx)
		if err != nil {
			return err
		}
		printActiveModel(md, ctrl.Status())
	case "end-training":
		md, err := ctrl.EndTraining(ctx)
		if err != nil {
			return err
		}
		printActiveModel(md, ctrl.Status())
	case "reset":
		if err := ctrl.Reset(ctx); err != nil {
			return err
		}
		printer.Success("Experiment reset\n")
	case "open":
		if len(c.args) != 1 {
			return fmt.Errorf("usage: open <file>")
		}
		exp, err := openExperiment(c.args[0])
		if err != nil {
			return err
		}
		if err := ctrl.Open(ctx, exp); err != nil {
			return err
		}
		printer.Success("Opened %s\n", exp)
	case "close":
		return ctrl.Close(ctx)
	case "comment":
		if len(c.args) == 0 {
			return fmt.Errorf("usage: comment <text>")
		}
		return ctrl.Comment(c.rest())
	case "status", "s":
		printStatus(ctrl.Status())
	case "help", "?":
		printer.Println(coordinatorCmd.Long)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", c.name)
	}
	return nil
}

// openExperiment loads and builds an experiment definition. Build errors
// are printed in full.
func openExperiment(path string) (*experiment.Experiment, error) {
	def, err := experiment.Load(path)
	if err != nil {
		return nil, printer.Error("cannot read experiment", err.Error(), nil)
	}
	var opts []experiment.Option
	if coordSeed != 0 {
		opts = append(opts, experiment.WithRand(rand.New(rand.NewPCG(uint64(coordSeed), 0))))
	}
	exp, err := def.Build(opts...)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"experiment invalid",
			err.Error(),
			map[string]string{"File": path},
			[]string{fmt.Sprintf("Check the definition with:\n  collab validate %s", path)},
		)
	}
	return exp, nil
}

func printMembership(ev coordinator.Event) {
	p := ev.Participant
	switch ev.Kind {
	case coordinator.EventParticipantAdded:
		printer.Success("Participant %d joined (%s)\n", p.Index, p.ID)
	case coordinator.EventParticipantRemoved:
		printer.Warning("Participant %d left (%s)\n", p.Index, p.ID)
	case coordinator.EventIndexConflict:
		printer.Warning("Participant %s claimed index %d, already held by %s\n", p.ID, p.Index, ev.HeldBy)
	case coordinator.EventIndexOutOfRange:
		printer.Warning("Participant %s claimed index %d, which this experiment has no slot for\n", p.ID, p.Index)
	}
}

func printActiveModel(md *model.Model, st coordinator.Status) {
	if md == nil {
		printer.Step("%s\n", st.ActiveModel)
		return
	}
	phase := "experiment"
	if st.Training {
		phase = "training"
	}
	printer.Step("Model %s (%s)\n", md.Name(), phase)
	printer.Field("target", model.FormatVector(md.Target(), 3))
}

func printStatus(st coordinator.Status) {
	if st.Experiment == "" {
		printer.Println("No experiment open")
	} else {
		printer.Field("experiment", st.Experiment)
		printer.Field("phase", st.Phase)
	}
	printer.Field("mode", st.Mode)
	printer.Field("model", st.ActiveModel)
	if st.Target != nil {
		printer.Field("target", model.FormatVector(st.Target, 3))
		printer.Field("input", model.FormatVector(st.Input, 3))
		printer.Field("output", model.FormatVector(st.Output, 3))
	}

	seated := 0
	for _, p := range st.Participants {
		if p.Seated {
			seated++
		}
	}
	printer.Field("participants", fmt.Sprintf("%d seated of %d required", seated, st.Required))
	for _, p := range st.Participants {
		state := "waiting"
		switch {
		case !p.Seated && p.Index >= 0:
			state = "index conflict"
		case p.Seated && p.Ready:
			state = "ready"
		case p.Seated:
			state = "seated"
		}
		printer.Printf("    [%d] %s %s\n", p.Index, p.ID, state)
	}
}
