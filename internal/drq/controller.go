// Package drq implements the Digital Red Queen round controller: the
// co-evolutionary loop in which each new attacker is cross-tested against
// recent defenders and each new defender is scored against every archived
// attack. The controller is single-threaded; its only parallelism is the
// evaluation subprocess, which runs to completion before control returns.
package drq

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"redqueen/internal/agents"
	"redqueen/internal/archive"
	"redqueen/internal/classify"
	"redqueen/internal/config"
	"redqueen/internal/fitness"
	"redqueen/internal/genome"
	"redqueen/internal/logging"
	"redqueen/internal/novelty"
	"redqueen/internal/quality"
	"redqueen/internal/store"
)

const (
	// attackContextSize is how many archived attacks the attacker sees.
	attackContextSize = 5
	// defenseContextSize is how many attacks the defender is shown.
	defenseContextSize = 3
	// failedMemoryHigh/Low bound the failed-attack memory.
	failedMemoryHigh = 50
	failedMemoryLow  = 30
	// rejectPenaltyThreshold applies when reject_gamed_patches is set.
	rejectPenaltyThreshold = 0.8
)

// Runner drives the hardening loop for one target.
type Runner struct {
	cfg   *config.Config
	agent agents.Agent
	eval  *fitness.Evaluator

	attackArchive  *archive.MAPElites
	defenseArchive *archive.DefenseArchive
	tracker        *novelty.Tracker
	checker        *quality.Checker
	telemetry      *store.RunStore

	runID          string
	originalTarget string
	currentTarget  string
	sanityTests    string
	targetPath     string

	metrics       Metrics
	failedAttacks []agents.Candidate
	startRound    int
	rng           *rand.Rand
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTelemetry attaches a run store.
func WithTelemetry(s *store.RunStore) Option {
	return func(r *Runner) { r.telemetry = s }
}

// WithTargetPath records where the target was loaded from, so the
// hardened source can be written next to it.
func WithTargetPath(path string) Option {
	return func(r *Runner) { r.targetPath = path }
}

// New builds a controller for the given target source. The sanity text
// may be empty; then no baseline veto applies.
func New(cfg *config.Config, agent agents.Agent, eval *fitness.Evaluator, target, sanityTests string, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:            cfg,
		agent:          agent,
		eval:           eval,
		attackArchive:  archive.NewMAPElites(cfg.Run.MaxAttacksPerNiche),
		defenseArchive: archive.NewDefenseArchive(cfg.Run.MaxDefenders),
		checker:        quality.NewChecker(),
		runID:          uuid.NewString(),
		originalTarget: target,
		currentTarget:  target,
		sanityTests:    sanityTests,
		startRound:     1,
		rng:            rand.New(rand.NewSource(cfg.Run.Seed)),
	}
	if cfg.Run.UseNovelty {
		r.tracker = novelty.NewTracker()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID identifies this run in telemetry and results.
func (r *Runner) RunID() string { return r.runID }

// CurrentTarget returns the latest accepted target snapshot.
func (r *Runner) CurrentTarget() string { return r.currentTarget }

// AttackArchive exposes the attack archive for inspection.
func (r *Runner) AttackArchive() *archive.MAPElites { return r.attackArchive }

// DefenseArchive exposes the defense archive for inspection.
func (r *Runner) DefenseArchive() *archive.DefenseArchive { return r.defenseArchive }

// Metrics returns the accumulated metrics.
func (r *Runner) Metrics() Metrics { return r.metrics }

// Results is what a completed run surfaces.
type Results struct {
	RunID          string               `json:"run_id"`
	Timestamp      string               `json:"timestamp"`
	Config         config.RunConfig     `json:"config"`
	Metrics        Metrics              `json:"metrics"`
	AttackStats    archive.Stats        `json:"attack_archive_stats"`
	DefenseStats   archive.DefenseStats `json:"defense_archive_stats"`
	HardenedSource string               `json:"-"`
}

// Run executes the configured number of rounds and persists results under
// the output directory. Agent and sandbox failures never abort the run.
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	if err := os.MkdirAll(r.cfg.Run.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	logging.Rounds("run %s starting: %d rounds, %d attacks per round",
		r.runID, r.cfg.Run.NRounds, r.cfg.Run.AttacksPerRound)

	start := time.Now()
	for round := r.startRound; round <= r.cfg.Run.NRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := r.runRound(ctx, round)
		r.metrics.Rounds = append(r.metrics.Rounds, stats)

		if r.cfg.Run.CheckpointEvery > 0 && round%r.cfg.Run.CheckpointEvery == 0 {
			if err := r.saveCheckpoint(round); err != nil {
				logging.Get(logging.CategoryRounds).Warn("checkpoint failed: %v", err)
			}
		}
		if err := r.telemetry.RecordRound(r.runID, round, stats.NewRobustness,
			r.attackArchive.Size(), r.metrics.APICalls); err != nil {
			logging.StoreDebug("round telemetry failed: %v", err)
		}
	}
	r.metrics.TotalTimeSec = time.Since(start).Seconds()
	r.metrics.FinalRobustness = r.measureFinalRobustness(ctx)
	r.metrics.FinalGenerality = r.measureFinalGenerality()

	results := &Results{
		RunID:          r.runID,
		Timestamp:      time.Now().Format(time.RFC3339),
		Config:         r.cfg.Run,
		Metrics:        r.metrics,
		AttackStats:    r.attackArchive.GetStats(),
		DefenseStats:   r.defenseArchive.GetStats(),
		HardenedSource: r.currentTarget,
	}
	if err := r.saveResults(results); err != nil {
		return nil, err
	}
	return results, nil
}

// runRound executes one attack phase and one defense phase. The round is
// atomic with respect to target promotion: the promotion decision is the
// last step and all-or-nothing.
func (r *Runner) runRound(ctx context.Context, round int) RoundStats {
	logging.Rounds("=== ROUND %d/%d ===", round, r.cfg.Run.NRounds)
	stats := RoundStats{Round: round}

	r.attackPhase(ctx, round, &stats)
	r.defensePhase(ctx, round, &stats)

	r.metrics.GeneralityOverTime = append(r.metrics.GeneralityOverTime, r.attackArchive.GetStats().AvgGenerality)
	r.metrics.EstimatedCost = float64(r.metrics.APICalls) * r.cfg.Agents.CostPerCall

	logging.Rounds("round %d complete: %d/%d attacks landed, archive=%d, robustness=%.2f",
		round, stats.AttacksSuccessful, stats.AttacksGenerated,
		r.attackArchive.Size(), stats.NewRobustness)
	return stats
}

// attackPhase generates, scores and archives new attacks, falling back to
// mutation and crossover when nothing fresh lands.
func (r *Runner) attackPhase(ctx context.Context, round int, stats *RoundStats) {
	logging.Attack("attack phase: generating %d candidates", r.cfg.Run.AttacksPerRound)

	accepted := 0
	for i := 0; i < r.cfg.Run.AttacksPerRound; i++ {
		previous := r.sampleContext(attackContextSize)
		failed := r.recentFailures()

		candidate, err := r.agent.GenerateAttack(ctx, r.currentTarget, previous, failed)
		r.metrics.APICalls++
		if err != nil || candidate == nil {
			logging.Attack("attack %d skipped: %v", i+1,
				newCoded(ErrCodeAgentFailure, "attacker returned nothing usable",
					map[string]interface{}{"round": round, "cause": fmt.Sprintf("%v", err)}))
			continue
		}
		stats.AttacksGenerated++

		if r.admitAttack(ctx, round, *candidate, "") {
			accepted++
			stats.AttacksSuccessful++
		}
	}

	if accepted == 0 && r.attackArchive.Size() >= 2 {
		logging.Attack("no attacks landed; trying mutation/crossover")
		if r.tryMutation(ctx, round, stats) {
			return
		}
		r.tryCrossover(ctx, round, stats)
	}
}

// admitAttack scores a candidate against the current target and, when it
// succeeds, classifies it, pre-scores its generality against recent
// defenders and offers it to the archive. sentinel overrides the derived
// error type for mutants and crossover children.
func (r *Runner) admitAttack(ctx context.Context, round int, candidate agents.Candidate, sentinel genome.ErrorType) bool {
	res := r.eval.EvaluateAttack(ctx, r.currentTarget, candidate.TestCode)
	if !res.Succeeded() {
		r.rememberFailure(candidate)
		r.recordAttackTelemetry(round, candidate, res.Score, false)
		return false
	}

	errorType := sentinel
	if errorType == "" {
		errorType = classify.ErrorTypeOf(res.Errors)
	}

	errMsg := ""
	if len(res.Errors) > 0 {
		errMsg = res.Errors[0]
	}
	if r.tracker != nil {
		nov := r.tracker.Check(candidate.TestCode, candidate.AttackType, errMsg)
		if !nov.IsNovel {
			logging.Novelty("candidate rejected: %s", nov.Reason)
			r.recordAttackTelemetry(round, candidate, res.Score, false)
			return false
		}
	}

	g := &genome.AttackGenome{
		Code:        candidate.TestCode,
		AttackType:  candidate.AttackType,
		ErrorType:   errorType,
		Description: candidate.Description,
		Fitness:     res.Score,
		Generation:  round,
	}
	r.scoreGenerality(ctx, g)

	added := r.attackArchive.Add(g)
	if added && r.tracker != nil {
		r.tracker.Register(candidate.TestCode, candidate.AttackType, errMsg)
	}
	if added {
		logging.Attack("accepted [%s|%s] fitness=%.2f generality=%.2f: %s",
			g.AttackType, g.ErrorType, g.Fitness, g.Generality(), g.Description)
	}
	r.recordAttackTelemetry(round, candidate, res.Score, added)
	return added
}

// scoreGenerality is the Red Queen cross-test for attacks: the candidate
// runs against the last K archived defenders, counting every non-blocked
// crash as a defeat.
func (r *Runner) scoreGenerality(ctx context.Context, g *genome.AttackGenome) {
	defenders := r.defenseArchive.Last(r.cfg.Run.TestAgainstPrevious)
	if len(defenders) == 0 {
		return
	}

	defeats := 0
	for _, d := range defenders {
		res := r.eval.EvaluateAttack(ctx, d.Code, g.Code)
		if !fitness.Blocked(res) {
			defeats++
		}
	}
	g.DefeatsCount = defeats
	g.TestedAgainst = len(defenders)
}

// tryMutation mutates the max-fitness genome.
func (r *Runner) tryMutation(ctx context.Context, round int, stats *RoundStats) bool {
	best := r.bestAttack()
	if best == nil {
		return false
	}

	parent := agents.Candidate{
		TestCode:    best.Code,
		Description: best.Description,
		AttackType:  best.AttackType,
	}
	mutant, err := r.agent.MutateAttack(ctx, parent)
	r.metrics.APICalls++
	if err != nil || mutant == nil {
		return false
	}
	if r.admitAttack(ctx, round, *mutant, genome.ErrMutated) {
		stats.AttacksSuccessful++
		logging.Attack("mutation landed: %s", mutant.Description)
		return true
	}
	return false
}

// tryCrossover crosses two random genomes. The higher-fitness parent goes
// first; the child takes its attack type.
func (r *Runner) tryCrossover(ctx context.Context, round int, stats *RoundStats) {
	all := r.attackArchive.GetAll()
	if len(all) < 2 {
		return
	}
	i := r.rng.Intn(len(all))
	j := r.rng.Intn(len(all) - 1)
	if j >= i {
		j++
	}
	first, second := all[i], all[j]
	if second.Fitness > first.Fitness {
		first, second = second, first
	}

	child, err := r.agent.CrossoverAttacks(ctx,
		agents.Candidate{TestCode: first.Code, Description: first.Description, AttackType: first.AttackType},
		agents.Candidate{TestCode: second.Code, Description: second.Description, AttackType: second.AttackType})
	r.metrics.APICalls++
	if err != nil || child == nil {
		return
	}
	if r.admitAttack(ctx, round, *child, genome.ErrCrossover) {
		stats.AttacksSuccessful++
		logging.Attack("crossover landed: %s + %s", first.AttackType, second.AttackType)
	}
}

// defensePhase asks for a patch, scores its robustness against every
// archived attack and applies the strict promotion rule.
func (r *Runner) defensePhase(ctx context.Context, round int, stats *RoundStats) {
	display := r.attackArchive.GetDiverseSample(defenseContextSize)
	if len(display) == 0 {
		logging.Defense("no attacks to defend against")
		return
	}

	failing := make([]agents.Candidate, 0, len(display))
	for _, g := range display {
		failing = append(failing, agents.Candidate{
			TestCode:    g.Code,
			Description: g.Description,
			AttackType:  g.AttackType,
		})
	}

	patch, err := r.agent.GenerateDefense(ctx, r.currentTarget, failing, nil)
	r.metrics.APICalls++
	if err != nil || patch == nil {
		logging.Defense("defender produced no patch: %v", err)
		return
	}

	penalty, warnings := r.checker.Check(r.originalTarget, patch.FixedCode)
	for _, w := range warnings {
		logging.Defense("quality warning: %s", w)
	}
	if r.cfg.Run.RejectGamedPatches && penalty >= rejectPenaltyThreshold {
		logging.Defense("patch rejected by quality gate (penalty=%.2f)", penalty)
		return
	}

	allAttacks := r.attackArchive.GetAll()

	// Sanity veto before robustness scoring: a patch that breaks the
	// baseline gets fitness 0 regardless of what it blocks.
	sane := r.eval.CheckSanity(ctx, patch.FixedCode, r.sanityTests)
	if !sane {
		logging.Defense("defense fitness forced to 0: %v",
			newCoded(ErrCodeSanityFailed, "patch breaks baseline behavior",
				map[string]interface{}{"round": round, "patch": genome.HashCode(patch.FixedCode)}))
	}

	blocks := 0
	if sane {
		for _, g := range allAttacks {
			res := r.eval.EvaluateAttack(ctx, patch.FixedCode, g.Code)
			if fitness.Blocked(res) {
				blocks++
				logging.Defense("blocked: %s|%s", g.AttackType, g.ErrorType)
			} else {
				logging.Defense("crashed: %s|%s - %s", g.AttackType, g.ErrorType, firstError(res.Errors))
			}
		}
	}

	robustness := 0.0
	if len(allAttacks) > 0 {
		robustness = float64(blocks) / float64(len(allAttacks))
	}

	defense := &genome.DefenseGenome{
		Code:          patch.FixedCode,
		Description:   patch.Explanation,
		Fitness:       robustness,
		BlocksCount:   blocks,
		TestedAgainst: len(allAttacks),
		Generation:    round,
	}

	best := r.defenseArchive.GetBest()
	bestRobustness := 0.0
	if best != nil {
		bestRobustness = best.Robustness()
	}

	// Insert unconditionally; promote only on strict improvement.
	r.defenseArchive.Add(defense)

	if robustness > bestRobustness {
		r.currentTarget = patch.FixedCode
		stats.DefenseImproved = true
		logging.Defense("defense promoted: %.2f -> %.2f", bestRobustness, robustness)
	} else {
		logging.Defense("%v", newCoded(ErrCodePromotionBlocked,
			fmt.Sprintf("robustness %.2f does not beat %.2f", robustness, bestRobustness),
			map[string]interface{}{"round": round}))
	}

	stats.NewRobustness = robustness
	r.metrics.RobustnessOverTime = append(r.metrics.RobustnessOverTime, robustness)

	if err := r.telemetry.RecordEvaluation(r.runID, round, store.RoleDefense,
		defense.Hash(), "", "", robustness, stats.DefenseImproved); err != nil {
		logging.StoreDebug("defense telemetry failed: %v", err)
	}
}

// measureFinalRobustness re-scores the final target against the whole
// archive using the same blocked rule as the round loop.
func (r *Runner) measureFinalRobustness(ctx context.Context) float64 {
	all := r.attackArchive.GetAll()
	if len(all) == 0 {
		return 1.0
	}
	blocks := 0
	for _, g := range all {
		res := r.eval.EvaluateAttack(ctx, r.currentTarget, g.Code)
		if fitness.Blocked(res) {
			blocks++
		}
	}
	return float64(blocks) / float64(len(all))
}

// measureFinalGenerality averages attack generality over the archive.
func (r *Runner) measureFinalGenerality() float64 {
	all := r.attackArchive.GetAll()
	if len(all) == 0 {
		return 0.0
	}
	var sum float64
	for _, g := range all {
		sum += g.Generality()
	}
	return sum / float64(len(all))
}

// sampleContext converts a diverse archive sample into agent candidates.
func (r *Runner) sampleContext(n int) []agents.Candidate {
	sample := r.attackArchive.GetDiverseSample(n)
	out := make([]agents.Candidate, 0, len(sample))
	for _, g := range sample {
		out = append(out, agents.Candidate{
			TestCode:    g.Code,
			Description: g.Description,
			AttackType:  g.AttackType,
		})
	}
	return out
}

// rememberFailure keeps a bounded memory of attacks that did not land.
func (r *Runner) rememberFailure(c agents.Candidate) {
	r.failedAttacks = append(r.failedAttacks, c)
	if len(r.failedAttacks) > failedMemoryHigh {
		r.failedAttacks = r.failedAttacks[len(r.failedAttacks)-failedMemoryLow:]
	}
}

// recentFailures returns the last few failed attacks for prompt context.
func (r *Runner) recentFailures() []agents.Candidate {
	const window = 10
	if len(r.failedAttacks) <= window {
		return r.failedAttacks
	}
	return r.failedAttacks[len(r.failedAttacks)-window:]
}

func (r *Runner) bestAttack() *genome.AttackGenome {
	var best *genome.AttackGenome
	for _, g := range r.attackArchive.GetAll() {
		if best == nil || g.Fitness > best.Fitness {
			best = g
		}
	}
	return best
}

func (r *Runner) recordAttackTelemetry(round int, c agents.Candidate, score float64, accepted bool) {
	if err := r.telemetry.RecordEvaluation(r.runID, round, store.RoleAttack,
		genome.HashCode(c.TestCode), string(c.AttackType), "", score, accepted); err != nil {
		logging.StoreDebug("attack telemetry failed: %v", err)
	}
}

// saveResults writes results.json, the attack archive and the hardened
// source next to the original input.
func (r *Runner) saveResults(results *Results) error {
	outDir := r.cfg.Run.OutputDir

	if err := r.attackArchive.Save(filepath.Join(outDir, "attack_archive.json")); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, "results.json"), results); err != nil {
		return err
	}
	hardenedPath := filepath.Join(outDir, "target_hardened.py")
	if r.targetPath != "" {
		// Next to the original input, in the original's naming scheme.
		dir := filepath.Dir(r.targetPath)
		base := filepath.Base(r.targetPath)
		ext := filepath.Ext(base)
		hardenedPath = filepath.Join(dir, base[:len(base)-len(ext)]+"_hardened"+ext)
	}
	if err := os.WriteFile(hardenedPath, []byte(r.currentTarget), 0644); err != nil {
		return fmt.Errorf("failed to write hardened target: %w", err)
	}
	logging.Rounds("results saved to %s, hardened target at %s", outDir, hardenedPath)
	return nil
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "unknown"
	}
	return errs[0]
}
