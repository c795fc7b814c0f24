package drq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"redqueen/internal/agents"
	"redqueen/internal/archive"
	"redqueen/internal/config"
	"redqueen/internal/fitness"
	"redqueen/internal/logging"
)

// Checkpoint captures enough state to reconstruct a run: the current
// target and both archives in full, not just their stats.
type Checkpoint struct {
	RunID          string          `json:"run_id"`
	Round          int             `json:"round"`
	CurrentCode    string          `json:"current_code"`
	OriginalCode   string          `json:"original_code"`
	AttackArchive  json.RawMessage `json:"attack_archive"`
	DefenseArchive json.RawMessage `json:"defense_archive"`
	Metrics        Metrics         `json:"metrics"`

	// Stats duplicated for quick inspection without replaying archives.
	AttackStats  archive.Stats        `json:"attack_stats"`
	DefenseStats archive.DefenseStats `json:"defense_stats"`
}

// saveCheckpoint serializes the run state to
// <output_dir>/checkpoint_round_<N>.json.
func (r *Runner) saveCheckpoint(round int) error {
	attackSnap, err := r.attackArchive.Snapshot()
	if err != nil {
		return err
	}
	defenseSnap, err := r.defenseArchive.Snapshot()
	if err != nil {
		return err
	}

	cp := Checkpoint{
		RunID:          r.runID,
		Round:          round,
		CurrentCode:    r.currentTarget,
		OriginalCode:   r.originalTarget,
		AttackArchive:  attackSnap,
		DefenseArchive: defenseSnap,
		Metrics:        r.metrics,
		AttackStats:    r.attackArchive.GetStats(),
		DefenseStats:   r.defenseArchive.GetStats(),
	}

	path := filepath.Join(r.cfg.Run.OutputDir, fmt.Sprintf("checkpoint_round_%d.json", round))
	if err := writeJSON(path, cp); err != nil {
		return err
	}
	logging.Rounds("checkpoint saved: %s", path)
	return nil
}

// LoadCheckpoint reads a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Resume builds a Runner whose state continues from a checkpoint. The
// next executed round is cp.Round+1.
func Resume(cfg *config.Config, agent agents.Agent, eval *fitness.Evaluator, cp *Checkpoint, sanityTests string, opts ...Option) (*Runner, error) {
	r, err := New(cfg, agent, eval, cp.OriginalCode, sanityTests, opts...)
	if err != nil {
		return nil, err
	}

	r.runID = cp.RunID
	r.currentTarget = cp.CurrentCode
	r.metrics = cp.Metrics
	r.startRound = cp.Round + 1

	if err := r.attackArchive.Restore(cp.AttackArchive); err != nil {
		return nil, err
	}
	if err := r.defenseArchive.Restore(cp.DefenseArchive); err != nil {
		return nil, err
	}
	logging.Rounds("resumed run %s from round %d", r.runID, cp.Round)
	return r, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
