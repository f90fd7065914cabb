package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/collab/internal/config"
	"github.com/dyluth/collab/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	for _, name := range []string{config.EnvSession, config.EnvRedisURL, config.EnvIndex, config.EnvLogLevel} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()

	created, err := Initialize(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{ConfigFile, ExperimentFile}, created)

	cfg, err := config.Load(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "collab", cfg.Session)
	assert.Equal(t, ExperimentFile, cfg.Coordinator.Experiment)
	assert.Nil(t, cfg.Participant.Index)

	def, err := experiment.Load(filepath.Join(dir, ExperimentFile))
	require.NoError(t, err)
	exp, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Participants())
	assert.Len(t, exp.TrainingModels(), 1)
	assert.Len(t, exp.ExperimentModels(), 2)

	for _, md := range append(exp.TrainingModels(), exp.ExperimentModels()...) {
		x, err := md.SolutionVector()
		require.NoError(t, err, md.Name())
		assert.True(t, md.IsSolvedBy(x), md.Name())
	}
}

func TestInitializeRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("custom"), 0644))

	_, err := Initialize(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project already initialized")
	assert.Contains(t, err.Error(), ": collab.yml")

	content, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "custom", string(content), "existing file untouched")
}

func TestInitializeForce(t *testing.T) {
	for _, name := range []string{config.EnvSession, config.EnvRedisURL, config.EnvIndex, config.EnvLogLevel} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("custom"), 0644))

	_, err := Initialize(dir, true)
	require.NoError(t, err)

	_, err = config.Load(filepath.Join(dir, ConfigFile))
	assert.NoError(t, err)
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	_, err := Initialize(dir, true)
	require.NoError(t, err)

	err = CheckExisting(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Found existing files:")
	assert.Contains(t, err.Error(), "  - collab.yml")
	assert.Contains(t, err.Error(), "  - experiments/pilot.yml")
	assert.Contains(t, err.Error(), "collab init --force")
}
