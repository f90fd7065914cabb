package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/collab/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrialLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trial.jsonl")
	tl, err := logging.OpenTrialLog(path)
	require.NoError(t, err)
	require.NoError(t, tl.Record(logging.TrialOpened, map[string]any{"experiment": "pilot"}))
	require.NoError(t, tl.Record(logging.TrialInitialized, map[string]any{"model": "m1"}))
	require.NoError(t, tl.Record(logging.TrialUpdated, map[string]any{"output_error": 0.01}))
	require.NoError(t, tl.Record(logging.TrialSolved, map[string]any{"model": "m1"}))
	require.NoError(t, tl.Record(logging.TrialInitialized, map[string]any{"model": "m2"}))
	require.NoError(t, tl.Close())
	return path
}

func resetTrialsFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		trialsOutputFormat, trialsSince, trialsUntil = "default", "", ""
		trialsEvent, trialsModel, trialsSummary = "", "", false
		for _, name := range []string{"output", "since", "until", "event", "model", "summary"} {
			trialsCmd.Flags().Lookup(name).Changed = false
		}
	})
}

func TestTrialsCommand_List(t *testing.T) {
	out, _ := captureOutput(t)
	resetTrialsFlags(t)
	rootCmd.SetArgs([]string{"trials", writeTrialLog(t), "--event", "init*"})
	require.NoError(t, rootCmd.Execute())

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `model="m1"`)
	assert.Contains(t, string(lines[1]), `model="m2"`)
}

func TestTrialsCommand_JSONL(t *testing.T) {
	out, _ := captureOutput(t)
	resetTrialsFlags(t)
	rootCmd.SetArgs([]string{"trials", writeTrialLog(t), "--model", "m1", "-o", "jsonl"})
	require.NoError(t, rootCmd.Execute())

	records, err := logging.ReadTrialLog(out)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, logging.TrialInitialized, records[0].Event)
	assert.Equal(t, logging.TrialSolved, records[1].Event)
}

func TestTrialsCommand_Summary(t *testing.T) {
	out, _ := captureOutput(t)
	resetTrialsFlags(t)
	rootCmd.SetArgs([]string{"trials", writeTrialLog(t), "--summary", "--output", "jsonl", "--since", "1h"})
	require.NoError(t, rootCmd.Execute())

	dec := json.NewDecoder(out)
	var got []logging.TrialSummary
	for dec.More() {
		var s logging.TrialSummary
		require.NoError(t, dec.Decode(&s))
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].Model)
	assert.True(t, got[0].Solved)
	assert.Equal(t, "pilot", got[1].Experiment)
	assert.False(t, got[1].Solved)
	assert.WithinDuration(t, time.Now(), got[1].Started, time.Minute)
}

func TestTrialsCommand_Errors(t *testing.T) {
	captureOutput(t)
	resetTrialsFlags(t)

	rootCmd.SetArgs([]string{"trials", writeTrialLog(t), "--output", "xml"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "invalid output format", err.Error())
	trialsOutputFormat = "default"

	rootCmd.SetArgs([]string{"trials", writeTrialLog(t), "--since", "soon"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "invalid time filter", err.Error())
	trialsSince = ""

	rootCmd.SetArgs([]string{"trials", filepath.Join(t.TempDir(), "missing.jsonl")})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "cannot read trial log", err.Error())
}

func TestFormatData(t *testing.T) {
	assert.Equal(t, `a=1 b="x" c=[1,2]`, formatData(map[string]any{"c": []int{1, 2}, "b": "x", "a": 1}))
	assert.Empty(t, formatData(nil))
}
