package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/collab/internal/config"
	"github.com/dyluth/collab/internal/coordinator"
	"github.com/dyluth/collab/internal/participant"
	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/testutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr, prevNoColor := printer.Out, printer.ErrOut, color.NoColor
	printer.Out, printer.ErrOut, color.NoColor = out, errOut, true
	t.Cleanup(func() {
		printer.Out, printer.ErrOut, color.NoColor = prevOut, prevErr, prevNoColor
	})
	return out, errOut
}

const sumDiffYAML = `name: sum-diff
participants: 2
training_models: []
experiment_models:
  - name: sum-diff
    coupling_matrix: [[1, 1], [1, -1]]
    target_vector: [3, 1]
    input_indices: [[0], [1]]
    output_indices: [[0], [1]]
    input_labels: [x0, x1]
    output_labels: [sum, diff]
  - name: flat
    coupling_matrix: [[1, 1], [1, 1]]
    target_vector: [1, 1]
    input_indices: [[0], [1]]
    output_indices: [[0], [1]]
    input_labels: [x0, x1]
    output_labels: [a, b]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCommand_ShowsHelp(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	require.NoError(t, rootCmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "Usage:")
	for _, sub := range []string{"coordinator", "participant", "validate", "watch", "up", "down", "list", "init", "trials"} {
		assert.Contains(t, output, sub)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		name string
		args []string
	}{
		{line: "", ok: false},
		{line: "   \t ", ok: false},
		{line: "next", ok: true, name: "next", args: []string{}},
		{line: "  SET 0  1.5 ", ok: true, name: "set", args: []string{"0", "1.5"}},
		{line: "comment Participant 2 looked confused", ok: true, name: "comment", args: []string{"Participant", "2", "looked", "confused"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, ok := parseCommand(tt.line)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.name, cmd.name)
			assert.Equal(t, tt.args, cmd.args)
		})
	}

	cmd, _ := parseCommand("comment  two   words")
	assert.Equal(t, "two words", cmd.rest())
}

func TestRunConsole(t *testing.T) {
	out, errOut := captureOutput(t)
	var seen []string
	err := runConsole(context.Background(), bytes.NewBufferString("status\nbogus\n\nquit\nnever\n"), "test",
		func(_ context.Context, c consoleCommand) error {
			seen = append(seen, c.name)
			switch c.name {
			case "quit":
				return errQuit
			case "bogus":
				return assert.AnError
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "bogus", "quit"}, seen)
	assert.Contains(t, out.String(), "test> ")
	assert.Contains(t, out.String()+errOut.String(), assert.AnError.Error())
}

func TestRunConsole_EOFWaitsForContext(t *testing.T) {
	captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConsole(ctx, bytes.NewBufferString(""), "test", func(context.Context, consoleCommand) error {
			return nil
		})
	}()

	select {
	case <-done:
		t.Fatal("console returned before context was cancelled")
	default:
	}
	cancel()
	require.NoError(t, <-done)
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid with singular warning", func(t *testing.T) {
		out, _ := captureOutput(t)
		rootCmd.SetArgs([]string{"validate", writeFile(t, "exp.yml", sumDiffYAML)})
		require.NoError(t, rootCmd.Execute())

		s := out.String()
		assert.Contains(t, s, "is valid")
		assert.Contains(t, s, "sum-diff")
		assert.Contains(t, s, "solution")
		assert.Contains(t, s, "singular")
		assert.Contains(t, s, "1 singular model(s)")
	})

	t.Run("invalid model", func(t *testing.T) {
		_, errOut := captureOutput(t)
		bad := `name: bad
participants: 1
experiment_models:
  - name: wide
    coupling_matrix: [[1, 2]]
    target_vector: [1, 2]
    input_indices: [[0, 1]]
    output_indices: [[0]]
    input_labels: [a, b]
    output_labels: [y]
`
		rootCmd.SetArgs([]string{"validate", writeFile(t, "bad.yml", bad)})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Equal(t, "experiment invalid", err.Error())
		assert.Contains(t, errOut.String(), "must be square")
	})

	t.Run("missing file", func(t *testing.T) {
		captureOutput(t)
		rootCmd.SetArgs([]string{"validate", filepath.Join(t.TempDir(), "none.yml")})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Equal(t, "cannot read experiment", err.Error())
	})
}

// flagCommand mirrors the root persistent flags so loadConfig can be
// exercised without running a subcommand.
func flagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.StringVar(&flagSession, "session", "", "")
	f.StringVar(&flagRedisURL, "redis-url", "", "")
	f.StringVar(&flagLogLevel, "log-level", "", "")
	f.StringVar(&flagLogFormat, "log-format", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{config.EnvSession, config.EnvRedisURL, config.EnvIndex, config.EnvLogLevel} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	captureOutput(t)
	prev := configPath
	t.Cleanup(func() { configPath = prev })

	configPath = writeFile(t, "collab.yml", `version: "1.0"
session: from-file
redis_url: redis://bus:6379
logging:
  level: debug
`)

	t.Run("file values", func(t *testing.T) {
		cfg, err := loadConfig(flagCommand(t))
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Session)
		assert.Equal(t, "redis://bus:6379", cfg.RedisURL)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("flags override file", func(t *testing.T) {
		cfg, err := loadConfig(flagCommand(t, "--session", "lab-3", "--redis-url", "redis://other:6380", "--log-format", "json"))
		require.NoError(t, err)
		assert.Equal(t, "lab-3", cfg.Session)
		assert.Equal(t, "redis://other:6380", cfg.RedisURL)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		_, err := loadConfig(flagCommand(t, "--session", "has space"))
		require.Error(t, err)
		assert.Equal(t, "invalid flags", err.Error())
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		configPath = filepath.Join(t.TempDir(), "collab.yml")
		cfg, err := loadConfig(flagCommand(t))
		require.NoError(t, err)
		assert.Equal(t, config.DefaultSession, cfg.Session)
		assert.Equal(t, config.DefaultRedisURL, cfg.RedisURL)
	})
}

func TestParticipantIndex(t *testing.T) {
	captureOutput(t)
	prev := partIndex
	t.Cleanup(func() { partIndex = prev })

	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "participant"}
		cmd.Flags().IntVarP(&partIndex, "index", "i", -1, "")
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}
	three := 3

	index, err := participantIndex(newCmd("--index", "1"), &config.CollabConfig{Participant: &config.ParticipantConfig{Index: &three}})
	require.NoError(t, err)
	assert.Equal(t, 1, index, "flag wins over config")

	index, err = participantIndex(newCmd(), &config.CollabConfig{Participant: &config.ParticipantConfig{Index: &three}})
	require.NoError(t, err)
	assert.Equal(t, 3, index)

	_, err = participantIndex(newCmd(), &config.CollabConfig{Participant: &config.ParticipantConfig{}})
	require.Error(t, err)
	assert.Equal(t, "participant index required", err.Error())

	_, err = participantIndex(newCmd("--index", "-2"), &config.CollabConfig{Participant: &config.ParticipantConfig{}})
	require.Error(t, err)
}

func TestCoordinatorConsoleCommands(t *testing.T) {
	out, _ := captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, opts := testutil.MiniRedis(t)
	ctrl := startCoordinator(ctx, t, opts, sumDiffExperiment(t))

	run := func(line string) error {
		c, ok := parseCommand(line)
		require.True(t, ok)
		return coordinatorCommand(ctx, ctrl, c)
	}

	assert.ErrorIs(t, run("next"), coordinator.ErrNotEnoughParticipants)
	assert.Error(t, run("end-training"), "no training phase")
	assert.ErrorContains(t, run("comment"), "usage")
	assert.NoError(t, run("comment all set"))
	assert.ErrorContains(t, run("open"), "usage")
	assert.ErrorContains(t, run("frobnicate"), "unknown command")
	assert.ErrorIs(t, run("quit"), errQuit)

	require.NoError(t, run("status"))
	assert.Contains(t, out.String(), "sum-diff")
	assert.Contains(t, out.String(), "0 seated of 2 required")

	require.NoError(t, run("open "+writeFile(t, "exp.yml", sumDiffYAML)))
	assert.Equal(t, "sum-diff", ctrl.Status().Experiment)

	require.NoError(t, run("close"))
	assert.Empty(t, ctrl.Status().Experiment)
	assert.ErrorIs(t, run("next"), coordinator.ErrNoExperiment)
	assert.ErrorIs(t, run("reset"), coordinator.ErrNoExperiment)

	out.Reset()
	require.NoError(t, run("status"))
	assert.Contains(t, out.String(), "No experiment open")
}

func TestParticipantConsoleCommands(t *testing.T) {
	captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, opts := testutil.MiniRedis(t)
	agent := startParticipant(ctx, t, opts, 0)

	run := func(line string) error {
		c, ok := parseCommand(line)
		require.True(t, ok)
		return participantCommand(ctx, agent, c)
	}

	assert.ErrorContains(t, run("set 0"), "usage")
	assert.ErrorContains(t, run("set x 1"), "invalid input number")
	assert.ErrorContains(t, run("set 0 abc"), "invalid value")
	assert.ErrorIs(t, run("set 0 1"), participant.ErrNotEditable)
	assert.ErrorIs(t, run("submit"), participant.ErrNotEditable)
	assert.ErrorContains(t, run("cancel"), "nothing submitted")
	assert.NoError(t, run("status"))
	assert.ErrorIs(t, run("exit"), errQuit)
}

func TestInitCommand(t *testing.T) {
	clearEnv(t)
	out, _ := captureOutput(t)
	dir := t.TempDir()
	t.Cleanup(func() {
		initDir, forceInit = ".", false
		initCmd.Flags().Lookup("dir").Changed = false
	})

	rootCmd.SetArgs([]string{"init", "--dir", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "collab.yml")
	assert.Contains(t, out.String(), "experiments/pilot.yml")

	rootCmd.SetArgs([]string{"init", "--dir", dir})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project already initialized")

	out.Reset()
	rootCmd.SetArgs([]string{"validate", filepath.Join(dir, "experiments", "pilot.yml")})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "is valid")
	assert.NotContains(t, out.String(), "singular model(s)")
}
