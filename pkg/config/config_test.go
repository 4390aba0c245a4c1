package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abcforge/abcsim/pkg/config"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "rejection", cfg.Algorithm.Name)
}

func TestLoad_SaveRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Algorithm.Name = "sabc"
	cfg.Algorithm.N = 250

	path := filepath.Join(t.TempDir(), "abcsim.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sabc", loaded.Algorithm.Name)
	assert.Equal(t, 250, loaded.Algorithm.N)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abcsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  seed: ${ABCSIM_TEST_SEED}\n"), 0644))
	t.Setenv("ABCSIM_TEST_SEED", "42")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 42, cfg.Run.Seed)
}

func TestValidate_RejectsUnknownAlgorithm(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Algorithm.Name = "not-a-real-algorithm"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMismatchedEpsilonSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Algorithm.Steps = 3
	cfg.Algorithm.EpsilonInit = []float64{1.0, 0.5}
	assert.Error(t, cfg.Validate())
}
