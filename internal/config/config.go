// Package config holds all redqueen configuration: the round schedule,
// archive bounds, sandbox settings, agent models and ambient logging.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/agilira/go-errors"
	"gopkg.in/yaml.v3"

	"redqueen/internal/logging"
)

// ErrCodeInvalidConfig marks a configuration the run refuses to start
// with.
const ErrCodeInvalidConfig errors.ErrorCode = "RQ_INVALID_CONFIG"

// Config holds all redqueen configuration.
type Config struct {
	Run       RunConfig        `yaml:"run"`
	Sandbox   SandboxConfig    `yaml:"sandbox"`
	Agents    AgentConfig      `yaml:"agents"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Logging   logging.Settings `yaml:"logging"`
}

// RunConfig drives the Red Queen round controller.
type RunConfig struct {
	NRounds             int    `yaml:"n_rounds"`
	AttacksPerRound     int    `yaml:"attacks_per_round"`
	MaxAttacksPerNiche  int    `yaml:"max_attacks_per_niche"`
	MaxDefenders        int    `yaml:"max_defenders"`
	TestAgainstPrevious int    `yaml:"test_against_previous"`
	CheckpointEvery     int    `yaml:"checkpoint_every"`
	OutputDir           string `yaml:"output_dir"`
	Seed                int64  `yaml:"seed"`

	// UseNovelty gates candidates through the novelty tracker before
	// archive insertion. MAP-Elites alone is enough for small runs.
	UseNovelty bool `yaml:"use_novelty"`

	// RejectGamedPatches turns quality-check warnings with penalty >= 0.8
	// into outright rejection. Off by default: fitness decides.
	RejectGamedPatches bool `yaml:"reject_gamed_patches"`
}

// SandboxConfig configures the evaluation subprocess.
type SandboxConfig struct {
	Python                   string `yaml:"python"`
	EvaluationTimeoutSeconds int    `yaml:"evaluation_timeout_seconds"`
	WorkDir                  string `yaml:"work_dir"`
	KeepArtifacts            bool   `yaml:"keep_artifacts"`
}

// Timeout returns the evaluation timeout as a duration.
func (s SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.EvaluationTimeoutSeconds) * time.Second
}

// AgentConfig configures the attacker and defender models.
type AgentConfig struct {
	AttackerModel       string  `yaml:"attacker_model"`
	AttackerTemperature float64 `yaml:"attacker_temperature"`
	DefenderModel       string  `yaml:"defender_model"`
	DefenderTemperature float64 `yaml:"defender_temperature"`
	MaxTokens           int     `yaml:"max_tokens"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	CostPerCall         float64 `yaml:"cost_per_call"`
}

// TelemetryConfig configures the optional sqlite run store.
type TelemetryConfig struct {
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			NRounds:             10,
			AttacksPerRound:     5,
			MaxAttacksPerNiche:  3,
			MaxDefenders:        50,
			TestAgainstPrevious: 10,
			CheckpointEvery:     2,
			OutputDir:           "results/drq",
			Seed:                42,
		},
		Sandbox: SandboxConfig{
			Python:                   "python3",
			EvaluationTimeoutSeconds: 30,
		},
		Agents: AgentConfig{
			AttackerModel:       "openai/gpt-4o-mini",
			AttackerTemperature: 1.0,
			DefenderModel:       "openai/gpt-4o-mini",
			DefenderTemperature: 0.5,
			MaxTokens:           2000,
			TimeoutSeconds:      60,
			CostPerCall:         0.002,
		},
		Logging: logging.Settings{Level: "info"},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the controller cannot run with.
func (c *Config) Validate() error {
	ctx := map[string]interface{}{}
	switch {
	case c.Run.NRounds <= 0:
		ctx["n_rounds"] = c.Run.NRounds
	case c.Run.AttacksPerRound <= 0:
		ctx["attacks_per_round"] = c.Run.AttacksPerRound
	case c.Run.MaxAttacksPerNiche <= 0:
		ctx["max_attacks_per_niche"] = c.Run.MaxAttacksPerNiche
	case c.Run.MaxDefenders <= 0:
		ctx["max_defenders"] = c.Run.MaxDefenders
	case c.Run.TestAgainstPrevious < 0:
		ctx["test_against_previous"] = c.Run.TestAgainstPrevious
	case c.Sandbox.EvaluationTimeoutSeconds <= 0:
		ctx["evaluation_timeout_seconds"] = c.Sandbox.EvaluationTimeoutSeconds
	case c.Run.OutputDir == "":
		ctx["output_dir"] = ""
	default:
		return nil
	}
	return errors.NewWithContext(ErrCodeInvalidConfig, "invalid configuration", ctx)
}
