package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"redqueen/internal/agents"
	"redqueen/internal/arena"
	"redqueen/internal/config"
	"redqueen/internal/drq"
	"redqueen/internal/fitness"
	"redqueen/internal/store"
)

var (
	hardenTarget  string
	hardenSanity  string
	hardenPreset  string
	hardenRounds  int
	hardenAttacks int
	hardenOutput  string
	hardenResume  string
	hardenNovelty bool
)

var hardenCmd = &cobra.Command{
	Use:   "harden",
	Short: "Run the adversarial hardening loop against a target file",
	Example: `  redqueen harden --target examples/json_parser/target.py
  redqueen harden --target target.py --sanity sanity_test.py --preset thorough
  redqueen harden --target target.py --resume results/drq/checkpoint_round_4.json`,
	RunE: runHarden,
}

func init() {
	hardenCmd.Flags().StringVarP(&hardenTarget, "target", "t", "", "path to the target source file (required)")
	hardenCmd.Flags().StringVarP(&hardenSanity, "sanity", "s", "", "path to sanity tests that every patch must pass")
	hardenCmd.Flags().StringVarP(&hardenPreset, "preset", "p", "", "run profile: quick|standard|thorough|premium|max")
	hardenCmd.Flags().IntVarP(&hardenRounds, "rounds", "r", 0, "override number of rounds")
	hardenCmd.Flags().IntVarP(&hardenAttacks, "attacks", "a", 0, "override attacks per round")
	hardenCmd.Flags().StringVarP(&hardenOutput, "output", "o", "", "override output directory")
	hardenCmd.Flags().StringVar(&hardenResume, "resume", "", "resume from a checkpoint file")
	hardenCmd.Flags().BoolVar(&hardenNovelty, "novelty", false, "gate attacks through the novelty tracker")
	_ = hardenCmd.MarkFlagRequired("target")
}

func runHarden(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	targetSource, err := os.ReadFile(hardenTarget)
	if err != nil {
		return fmt.Errorf("failed to read target: %w", err)
	}

	sanitySource := ""
	if hardenSanity != "" {
		data, err := os.ReadFile(hardenSanity)
		if err != nil {
			return fmt.Errorf("failed to read sanity tests: %w", err)
		}
		sanitySource = string(data)
	}

	// Credentials are fatal at startup, never mid-run.
	provider, err := agents.DiscoverProvider()
	if err != nil {
		return err
	}
	logger.Info("provider resolved",
		zap.String("provider", provider.Name),
		zap.String("attacker", cfg.Agents.AttackerModel),
		zap.String("defender", cfg.Agents.DefenderModel))

	agent := agents.NewLLMAgent(
		agents.NewChatClient(provider, agents.ChatConfig{
			Model:       cfg.Agents.AttackerModel,
			Temperature: cfg.Agents.AttackerTemperature,
			MaxTokens:   cfg.Agents.MaxTokens,
			Timeout:     time.Duration(cfg.Agents.TimeoutSeconds) * time.Second,
		}),
		agents.NewChatClient(provider, agents.ChatConfig{
			Model:       cfg.Agents.DefenderModel,
			Temperature: cfg.Agents.DefenderTemperature,
			MaxTokens:   cfg.Agents.MaxTokens,
			Timeout:     time.Duration(cfg.Agents.TimeoutSeconds) * time.Second,
		}),
	)

	runner := arena.NewPytestRunner(arena.Config{
		Python:        cfg.Sandbox.Python,
		Timeout:       cfg.Sandbox.Timeout(),
		WorkDir:       cfg.Sandbox.WorkDir,
		KeepArtifacts: cfg.Sandbox.KeepArtifacts,
	})
	evaluator := fitness.NewEvaluator(runner)

	opts := []drq.Option{drq.WithTargetPath(hardenTarget)}
	if cfg.Telemetry.DBPath != "" {
		telemetry, err := store.Open(cfg.Telemetry.DBPath)
		if err != nil {
			return err
		}
		defer telemetry.Close()
		opts = append(opts, drq.WithTelemetry(telemetry))
	}

	var controller *drq.Runner
	if hardenResume != "" {
		cp, err := drq.LoadCheckpoint(hardenResume)
		if err != nil {
			return err
		}
		controller, err = drq.Resume(cfg, agent, evaluator, cp, sanitySource, opts...)
		if err != nil {
			return err
		}
	} else {
		controller, err = drq.New(cfg, agent, evaluator, string(targetSource), sanitySource, opts...)
		if err != nil {
			return err
		}
	}

	logger.Info("starting run",
		zap.String("run_id", controller.RunID()),
		zap.Int("rounds", cfg.Run.NRounds),
		zap.Int("attacks_per_round", cfg.Run.AttacksPerRound))

	results, err := controller.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(results)
	return nil
}

// resolveConfig layers file config, preset and flag overrides.
func resolveConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if hardenPreset != "" {
		if err := cfg.ApplyPreset(hardenPreset); err != nil {
			return nil, err
		}
	}
	if hardenRounds > 0 {
		cfg.Run.NRounds = hardenRounds
	}
	if hardenAttacks > 0 {
		cfg.Run.AttacksPerRound = hardenAttacks
	}
	if hardenOutput != "" {
		cfg.Run.OutputDir = hardenOutput
	}
	if hardenNovelty {
		cfg.Run.UseNovelty = true
	}
	return cfg, cfg.Validate()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).
			Border(lipgloss.NormalBorder(), false, false, true, false)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(22)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

func printSummary(results *drq.Results) {
	fmt.Println(headerStyle.Render("FINAL RESULTS"))

	row := func(label, value string) {
		fmt.Println(labelStyle.Render(label) + valueStyle.Render(value))
	}
	row("Run", results.RunID)
	row("Rounds completed", fmt.Sprintf("%d", len(results.Metrics.Rounds)))
	row("Final robustness", fmt.Sprintf("%.1f%%", results.Metrics.FinalRobustness*100))
	row("Final generality", fmt.Sprintf("%.1f%%", results.Metrics.FinalGenerality*100))
	row("Attacks in archive", fmt.Sprintf("%d", results.AttackStats.TotalGenomes))
	row("Niches filled", fmt.Sprintf("%d", results.AttackStats.TotalNiches))
	row("Acceptance rate", fmt.Sprintf("%.1f%%", results.AttackStats.AcceptanceRate*100))
	row("API calls", fmt.Sprintf("%d", results.Metrics.APICalls))
	row("Estimated cost", fmt.Sprintf("$%.2f", results.Metrics.EstimatedCost))
	row("Total time", fmt.Sprintf("%.1fs", results.Metrics.TotalTimeSec))
}
