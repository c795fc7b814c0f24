package config

import (
	"os"
	"path/filepath"
	"testing"

	goerrors "github.com/agilira/go-errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Run.NRounds = 0 },
		func(c *Config) { c.Run.AttacksPerRound = -1 },
		func(c *Config) { c.Run.MaxAttacksPerNiche = 0 },
		func(c *Config) { c.Sandbox.EvaluationTimeoutSeconds = 0 },
		func(c *Config) { c.Run.OutputDir = "" },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := cfg.Validate()
		require.Error(t, err, "case %d", i)
		assert.True(t, goerrors.HasCode(err, ErrCodeInvalidConfig), "case %d should carry RQ_INVALID_CONFIG", i)
	}
}

func TestYAMLRoundtrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.NRounds = 7
	cfg.Run.UseNovelty = true
	cfg.Telemetry.DBPath = "telemetry.db"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestLoadAppliesDefaultsForAbsentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := []byte("run:\n  n_rounds: 3\n")
	require.NoError(t, os.WriteFile(path, partial, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.NRounds)
	assert.Equal(t, 5, cfg.Run.AttacksPerRound, "absent fields keep defaults")
	assert.Equal(t, "python3", cfg.Sandbox.Python)
}

func TestApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyPreset("thorough"))
	assert.Equal(t, 15, cfg.Run.NRounds)
	assert.Equal(t, 8, cfg.Run.AttacksPerRound)

	require.Error(t, cfg.ApplyPreset("nope"))
}

func TestSandboxTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30.0, cfg.Sandbox.Timeout().Seconds())
}
